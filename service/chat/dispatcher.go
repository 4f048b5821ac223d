package chat

import (
	"context"
	"fmt"
)

// Handler processes one classified frame for a session.
type Handler interface {
	Kind() FrameKind
	Handle(ctx context.Context, s *Session, f *Frame) error
}

type Dispatcher struct {
	handlers map[FrameKind]Handler
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{handlers: make(map[FrameKind]Handler)}
}

// Register installs h for its kind. Not safe to call once frames flow.
func (d *Dispatcher) Register(h Handler) { d.handlers[h.Kind()] = h }

func (d *Dispatcher) Dispatch(ctx context.Context, s *Session, f *Frame) error {
	h, ok := d.handlers[f.Kind]
	if !ok {
		return fmt.Errorf("no handler for kind=%v", f.Kind)
	}
	return h.Handle(ctx, s, f)
}
