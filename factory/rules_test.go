package factory

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/gestora/fiscal-engine/fiscal"
)

func TestParseRules_ValidTable(t *testing.T) {
	data := []byte(`{
		"models": {
			"303": {
				"allowed_categories": ["AUTONOMO", "EMPRESA"],
				"allowed_periodicities": ["MONTHLY", "QUARTERLY"]
			},
			"202": {
				"allowed_categories": ["EMPRESA"],
				"allowed_periodicities": ["SPECIAL_INSTALLMENT"],
				"installment_labels": ["Abril", "Octubre", "Diciembre"]
			}
		}
	}`)

	table, err := ParseRules(data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(table) != 2 {
		t.Fatalf("expected 2 models, got %d", len(table))
	}

	r303, ok := table.Rule("303")
	if !ok {
		t.Fatal("expected a rule for 303")
	}
	if !r303.AllowsCategory(fiscal.CategoryCompany) || r303.AllowsCategory(fiscal.CategoryIndividual) {
		t.Error("303 categories parsed incorrectly")
	}
	if !r303.AllowsPeriodicity(fiscal.Monthly) || r303.AllowsPeriodicity(fiscal.Annual) {
		t.Error("303 periodicities parsed incorrectly")
	}

	r202, _ := table.Rule("202")
	if len(r202.InstallmentLabels) != 3 {
		t.Errorf("expected 3 installment labels, got %d", len(r202.InstallmentLabels))
	}
}

func TestParseRules_EmptyModels_FallsBackToDefaults(t *testing.T) {
	for _, doc := range []string{`{}`, `{"models": {}}`} {
		table, err := ParseRules([]byte(doc))
		if err != nil {
			t.Fatalf("unexpected error for %q: %v", doc, err)
		}
		if _, ok := table.Rule("303"); !ok {
			t.Errorf("expected built-in defaults for %q", doc)
		}
	}
}

func TestParseRules_UnknownCategory_Fails(t *testing.T) {
	data := []byte(`{
		"models": {
			"303": {
				"allowed_categories": ["SOCIEDAD"],
				"allowed_periodicities": ["QUARTERLY"]
			}
		}
	}`)
	if _, err := ParseRules(data); err == nil {
		t.Fatal("expected an error for an unknown category")
	}
}

func TestParseRules_UnknownPeriodicity_Fails(t *testing.T) {
	data := []byte(`{
		"models": {
			"303": {
				"allowed_periodicities": ["WEEKLY"]
			}
		}
	}`)
	if _, err := ParseRules(data); err == nil {
		t.Fatal("expected an error for an unknown periodicity")
	}
}

func TestParseRules_MissingPeriodicities_Fails(t *testing.T) {
	data := []byte(`{
		"models": {
			"303": {
				"allowed_categories": ["EMPRESA"]
			}
		}
	}`)
	if _, err := ParseRules(data); err == nil {
		t.Fatal("expected an error when a model declares no periodicities")
	}
}

func TestParseRules_MalformedJSON_Fails(t *testing.T) {
	if _, err := ParseRules([]byte(`{"models": `)); err == nil {
		t.Fatal("expected an error for malformed JSON")
	}
}

func TestLoadRules_FromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.json")
	content := `{
		"models": {
			"130": {
				"allowed_categories": ["AUTONOMO"],
				"allowed_periodicities": ["QUARTERLY"]
			}
		}
	}`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write rules file: %v", err)
	}

	table, err := LoadRules(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := table.Rule("130"); !ok {
		t.Error("expected the loaded rule for 130")
	}
}

func TestLoadRules_MissingFile_Fails(t *testing.T) {
	if _, err := LoadRules(filepath.Join(t.TempDir(), "absent.json")); err == nil {
		t.Fatal("expected an error for a missing file")
	}
}
