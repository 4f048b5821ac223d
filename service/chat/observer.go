package chat

import (
	"context"
	"time"
)

// SessionEvent describes an identity being bound to or unbound from a
// connection on this node.
type SessionEvent struct {
	UserId    string    `json:"user_id"`
	SessionId string    `json:"session_id"`
	Remote    string    `json:"remote,omitempty"`
	At        time.Time `json:"at"`
}

// Observer is notified after the registry changes. Implementations must not
// block for long: they run on the session's receive goroutine.
type Observer interface {
	OnRegister(ctx context.Context, ev SessionEvent)
	OnRemove(ctx context.Context, ev SessionEvent)
}

// Observers fans one notification out to several observers in order.
type Observers []Observer

func (obs Observers) OnRegister(ctx context.Context, ev SessionEvent) {
	for _, o := range obs {
		o.OnRegister(ctx, ev)
	}
}

func (obs Observers) OnRemove(ctx context.Context, ev SessionEvent) {
	for _, o := range obs {
		o.OnRemove(ctx, ev)
	}
}
