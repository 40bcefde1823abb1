// Package events delivers build lifecycle events to the history store and to
// optional subscribers.
package events

import (
	"context"
	stderrors "errors"
	"fmt"

	"git.home.luguber.info/inful/fpmake/internal/eventstore"
)

// Emitter receives build lifecycle events. Emit errors never fail a build;
// callers log them.
type Emitter interface {
	Emit(ctx context.Context, e eventstore.Event) error
}

// Noop discards events.
type Noop struct{}

func (Noop) Emit(context.Context, eventstore.Event) error { return nil }

// StoreEmitter appends events to an event store.
type StoreEmitter struct {
	store eventstore.Store
}

// NewStoreEmitter creates a StoreEmitter.
func NewStoreEmitter(store eventstore.Store) *StoreEmitter {
	return &StoreEmitter{store: store}
}

// Emit implements Emitter.
func (s *StoreEmitter) Emit(ctx context.Context, e eventstore.Event) error {
	if s.store == nil {
		return nil
	}
	if err := s.store.Append(ctx, e); err != nil {
		return fmt.Errorf("failed to persist event: %w", err)
	}
	return nil
}

// Fanout delivers every event to each emitter in order. A failing emitter does
// not stop delivery to the rest; all errors are joined.
type Fanout []Emitter

// Emit implements Emitter.
func (f Fanout) Emit(ctx context.Context, e eventstore.Event) error {
	var errs []error
	for _, em := range f {
		if em == nil {
			continue
		}
		if err := em.Emit(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return stderrors.Join(errs...)
}
