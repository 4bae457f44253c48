package fiscal

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Sweeper promotes stale PENDING obligations to OVERDUE. The transition is
// disjoint from everything the Generator touches, so both may run
// concurrently without coordination.
type Sweeper struct {
	Obligations ObligationStore
	Log         zerolog.Logger
}

// NewSweeper wires a sweeper over the obligation store.
func NewSweeper(obl ObligationStore, log zerolog.Logger) *Sweeper {
	return &Sweeper{Obligations: obl, Log: log}
}

// Sweep marks every PENDING obligation with dueDate < now as OVERDUE and
// returns the number updated. Safe to call repeatedly: rows already in
// OVERDUE (or any other non-PENDING state) are untouched, and an empty
// sweep is not an error.
func (s *Sweeper) Sweep(ctx context.Context, now time.Time) (int, error) {
	updated, err := s.Obligations.MarkOverdue(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("marking overdue obligations: %w", err)
	}

	if updated > 0 {
		s.Log.Info().Int("updated", updated).Msg("obligations marked overdue")
	} else {
		s.Log.Debug().Msg("no obligations to mark overdue")
	}

	return updated, nil
}
