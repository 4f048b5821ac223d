package chat

import (
	"context"

	"go.uber.org/zap"
)

// fanoutHandler forwards a chat message, byte for byte, to every listed
// identity that is currently registered. Unknown identities are skipped and
// a failed delivery does not stop the rest.
type fanoutHandler struct{ r *Router }

func (h *fanoutHandler) Kind() FrameKind { return KindFanout }

func (h *fanoutHandler) Handle(ctx context.Context, s *Session, f *Frame) error {
	r := h.r
	r.fanouts.Add(1)

	for _, user := range f.Recipients {
		conn, ok := r.reg.Lookup(user)
		if !ok {
			r.skipped.Add(1)
			continue
		}
		if err := conn.Send(ctx, f.Raw); err != nil {
			r.sendFailures.Add(1)
			r.log.Warn("fan-out delivery failed",
				zap.String("session", s.ID),
				zap.String("user", user),
				zap.String("conn", conn.ID()),
				zap.Error(err))
			continue
		}
		r.deliveries.Add(1)
	}
	return nil
}

// registerHandler binds the sender's connection to the payload's user_id.
type registerHandler struct{ r *Router }

func (h *registerHandler) Kind() FrameKind { return KindRegister }

func (h *registerHandler) Handle(ctx context.Context, s *Session, f *Frame) error {
	r := h.r
	prev, hadPrev, ok := s.bind(f.UserId)
	if !ok {
		return ErrSessionClosed
	}
	// a connection holds at most one identity: switching is RemoveIf(old) then Register(new)
	if hadPrev && prev != f.UserId && r.reg.RemoveIf(prev, s.Conn) {
		r.notifyRemove(ctx, s, prev)
	}

	r.reg.Register(f.UserId, s.Conn)
	r.registrations.Add(1)
	r.log.Info("user connected",
		zap.String("session", s.ID),
		zap.String("user", f.UserId),
		zap.String("remote", s.Remote))
	r.notifyRegister(ctx, s, f.UserId)

	return r.reply(ctx, s, BuildRegisteredAck(f.UserId))
}

// invalidHandler answers anything that is neither chat nor registration.
type invalidHandler struct{ r *Router }

func (h *invalidHandler) Kind() FrameKind { return KindInvalid }

func (h *invalidHandler) Handle(ctx context.Context, s *Session, f *Frame) error {
	h.r.invalid.Add(1)
	return h.r.reply(ctx, s, BuildInvalidReply())
}
