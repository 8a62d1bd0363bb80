package manager

import (
	"context"
	"log/slog"
)

type compensation struct {
	name string
	undo func(ctx context.Context) error
}

// saga pairs every forward action that has a side effect with the action that
// reverts it. Abort runs the compensations of completed steps in reverse order.
type saga struct {
	name          string
	log           *slog.Logger
	compensations []compensation
}

func newSaga(name string, log *slog.Logger) *saga {
	return &saga{name: name, log: log}
}

// Step runs forward and, if it succeeds, records undo. A nil undo marks a step
// with nothing to revert.
func (s *saga) Step(ctx context.Context, name string, forward, undo func(ctx context.Context) error) error {
	if err := forward(ctx); err != nil {
		return err
	}
	if undo != nil {
		s.compensations = append(s.compensations, compensation{name: name, undo: undo})
	}
	return nil
}

// Abort compensates every completed step, newest first. A failed compensation
// is logged and does not stop the remaining ones.
func (s *saga) Abort(ctx context.Context, cause error) {
	for i := len(s.compensations) - 1; i >= 0; i-- {
		c := s.compensations[i]
		if err := c.undo(ctx); err != nil {
			s.log.Error("Compensation failed",
				slog.String("saga", s.name),
				slog.String("step", c.name),
				"err", err)
			continue
		}
		s.log.Warn("Compensated step",
			slog.String("saga", s.name),
			slog.String("step", c.name),
			"cause", cause)
	}
	s.compensations = nil
}
