package chat

import (
	"context"
	"sync/atomic"
	"time"

	"PPRelay/logger"
	"PPRelay/tools/errs"
	"PPRelay/tools/safe"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

var ErrSessionClosed = errors.New("session closed")

// RouterStats contains runtime statistics.
type RouterStats struct {
	FramesReceived    int64
	Fanouts           int64
	Deliveries        int64
	SkippedRecipients int64
	Registrations     int64
	InvalidFrames     int64
	SendFailures      int64
}

// Router classifies inbound frames and acts on them: binding identities,
// fanning chat messages out to registered recipients, or rejecting the
// payload back to its sender.
type Router struct {
	reg       *Registry
	disp      *Dispatcher
	observers Observers
	log       *zap.Logger

	observeTimeout time.Duration

	received      atomic.Int64
	fanouts       atomic.Int64
	deliveries    atomic.Int64
	skipped       atomic.Int64
	registrations atomic.Int64
	invalid       atomic.Int64
	sendFailures  atomic.Int64
}

type RouterOption func(*Router)

func WithLogger(l *zap.Logger) RouterOption {
	return func(r *Router) { r.log = logger.Or(l) }
}

// WithObservers adds observers notified on every bind and unbind.
func WithObservers(obs ...Observer) RouterOption {
	return func(r *Router) {
		for _, o := range obs {
			if o != nil {
				r.observers = append(r.observers, o)
			}
		}
	}
}

// WithObserveTimeout bounds each observer notification.
func WithObserveTimeout(d time.Duration) RouterOption {
	return func(r *Router) { r.observeTimeout = d }
}

func NewRouter(reg *Registry, opts ...RouterOption) *Router {
	safe.MustNotNil(reg, "registry")
	r := &Router{
		reg:            reg,
		disp:           NewDispatcher(),
		log:            logger.Log,
		observeTimeout: 2 * time.Second,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.disp.Register(&fanoutHandler{r: r})
	r.disp.Register(&registerHandler{r: r})
	r.disp.Register(&invalidHandler{r: r})
	return r
}

func (r *Router) Registry() *Registry { return r.reg }

// Handle routes one raw frame received on s. A non-nil error means the
// session can no longer be answered and should end; rejected payloads are
// answered and return nil.
func (r *Router) Handle(ctx context.Context, s *Session, raw []byte) error {
	r.received.Add(1)

	f, err := ParseFrame(raw)
	if err != nil {
		// 只打印简短样本
		sample := raw
		if len(sample) > 256 {
			sample = sample[:256]
		}
		r.log.Debug("rejecting frame",
			zap.String("session", s.ID),
			zap.Int("code", errs.Code(err)),
			zap.Error(err),
			zap.ByteString("sample", sample),
			zap.Int("len", len(raw)))
	}
	return r.disp.Dispatch(ctx, s, f)
}

// Close ends s and unbinds its identity, unless a newer connection has
// since registered under the same identity.
func (r *Router) Close(ctx context.Context, s *Session) {
	user, registered, first := s.close()
	if !first || !registered {
		return
	}
	if !r.reg.RemoveIf(user, s.Conn) {
		r.log.Debug("identity already rebound, keeping newer connection",
			zap.String("session", s.ID), zap.String("user", user))
		return
	}
	r.log.Info("user disconnected", zap.String("session", s.ID), zap.String("user", user))
	r.notifyRemove(ctx, s, user)
}

// Stats returns current statistics.
func (r *Router) Stats() RouterStats {
	return RouterStats{
		FramesReceived:    r.received.Load(),
		Fanouts:           r.fanouts.Load(),
		Deliveries:        r.deliveries.Load(),
		SkippedRecipients: r.skipped.Load(),
		Registrations:     r.registrations.Load(),
		InvalidFrames:     r.invalid.Load(),
		SendFailures:      r.sendFailures.Load(),
	}
}

// reply answers the sender. Failure means its transport is gone.
func (r *Router) reply(ctx context.Context, s *Session, data []byte) error {
	if err := s.Conn.Send(ctx, data); err != nil {
		return errors.Wrapf(err, "reply to session %s", s.ID)
	}
	return nil
}

func (r *Router) notifyRegister(ctx context.Context, s *Session, user string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.observeTimeout)
	defer cancel()
	r.observers.OnRegister(ctx, r.event(s, user))
}

func (r *Router) notifyRemove(ctx context.Context, s *Session, user string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.observeTimeout)
	defer cancel()
	r.observers.OnRemove(ctx, r.event(s, user))
}

func (r *Router) event(s *Session, user string) SessionEvent {
	return SessionEvent{
		UserId:    user,
		SessionId: s.ID,
		Remote:    s.Remote,
		At:        time.Now(),
	}
}
