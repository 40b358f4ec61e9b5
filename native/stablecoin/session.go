package stablecoin

import (
	"context"
	"errors"
	"fmt"

	"dscengine/core/events"
	"dscengine/crypto"
)

type undoStep struct {
	name string
	fn   func(ctx context.Context) error
}

// session journals one mutating call. Positions and totals are loaded once and
// worked on in place; every load and every completed external interaction
// registers an undo step. rollback replays the steps newest first.
type session struct {
	engine    *Engine
	op        string
	positions map[string]*Position
	totals    *Totals
	undo      []undoStep
	pending   []events.Event
}

func newSession(engine *Engine, op string) *session {
	return &session{
		engine:    engine,
		op:        op,
		positions: make(map[string]*Position),
	}
}

func (s *session) onRevert(name string, fn func(ctx context.Context) error) {
	s.undo = append(s.undo, undoStep{name: name, fn: fn})
}

func (s *session) emit(evt events.Event) {
	if evt != nil {
		s.pending = append(s.pending, evt)
	}
}

// position returns the working copy of addr's position, loading it on first
// use.
func (s *session) position(addr crypto.Address) (*Position, error) {
	if pos, ok := s.positions[addr.Key()]; ok {
		return pos, nil
	}
	stored, err := s.engine.state.GetPosition(addr)
	if err != nil {
		return nil, err
	}
	if stored == nil {
		stored = newPosition(addr)
	}
	stored.Address = addr
	stored.ensureDefaults()
	original := stored.Clone()
	s.positions[addr.Key()] = stored
	s.onRevert("restore position", func(context.Context) error {
		return s.engine.state.PutPosition(original)
	})
	return stored, nil
}

func (s *session) loadTotals() (*Totals, error) {
	if s.totals != nil {
		return s.totals, nil
	}
	stored, err := s.engine.state.GetTotals()
	if err != nil {
		return nil, err
	}
	if stored == nil {
		stored = newTotals()
	}
	original := stored.Clone()
	s.totals = stored
	s.onRevert("restore totals", func(context.Context) error {
		return s.engine.state.PutTotals(original)
	})
	return stored, nil
}

// persist writes the working copies of the given positions and the totals.
func (s *session) persist(positions ...*Position) error {
	for _, pos := range positions {
		if err := s.engine.state.PutPosition(pos); err != nil {
			return err
		}
	}
	if s.totals == nil {
		return nil
	}
	return s.engine.state.PutTotals(s.totals)
}

func (s *session) rollback(ctx context.Context) error {
	var errs []error
	for i := len(s.undo) - 1; i >= 0; i-- {
		step := s.undo[i]
		if err := step.fn(ctx); err != nil {
			s.engine.logger.Error("stablecoin rollback step failed",
				"op", s.op,
				"step", step.name,
				"error", err)
			errs = append(errs, fmt.Errorf("rollback %s: %w", step.name, err))
		}
	}
	s.undo = nil
	s.pending = nil
	s.engine.metrics.RecordRollback(s.op)
	return errors.Join(errs...)
}

func (s *session) commit() {
	s.undo = nil
	for _, evt := range s.pending {
		s.engine.emitter.Emit(evt)
	}
	s.pending = nil
}
