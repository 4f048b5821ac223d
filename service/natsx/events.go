package natsx

import (
	"context"
	"encoding/json"
	"time"

	"PPRelay/logger"
	"PPRelay/service/chat"

	"go.uber.org/zap"
)

const (
	BizSessionRegistered = "session.registered"
	BizSessionClosed     = "session.closed"
)

// SessionEventMsg is the JSON body of a relay session event.
type SessionEventMsg struct {
	Type      string    `json:"type"`
	UserId    string    `json:"user_id"`
	SessionId string    `json:"session_id"`
	NodeId    string    `json:"node_id"`
	Remote    string    `json:"remote,omitempty"`
	At        time.Time `json:"at"`
}

// EventPublisher announces registry bindings on NATS as
// <prefix>.session.registered and <prefix>.session.closed.
// Publishing is fire and forget.
type EventPublisher struct {
	producer *NatsxProducer
	nodeID   string
	log      *zap.Logger
}

var _ chat.Observer = (*EventPublisher)(nil)

func NewEventPublisher(c *NatsxClient, prefix, nodeID string, log *zap.Logger) (*EventPublisher, error) {
	for _, biz := range []string{BizSessionRegistered, BizSessionClosed} {
		if err := c.RegisterRoute(NatsxRoute{Biz: biz, Subject: subject(prefix, biz)}); err != nil {
			return nil, err
		}
	}
	return &EventPublisher{
		producer: NewNatsxProducer(c),
		nodeID:   nodeID,
		log:      logger.Or(log),
	}, nil
}

func subject(prefix, biz string) string {
	if prefix == "" {
		return biz
	}
	return prefix + "." + biz
}

func (p *EventPublisher) OnRegister(ctx context.Context, ev chat.SessionEvent) {
	p.publish(ctx, BizSessionRegistered, ev)
}

func (p *EventPublisher) OnRemove(ctx context.Context, ev chat.SessionEvent) {
	p.publish(ctx, BizSessionClosed, ev)
}

func (p *EventPublisher) publish(ctx context.Context, biz string, ev chat.SessionEvent) {
	data, err := json.Marshal(SessionEventMsg{
		Type:      biz,
		UserId:    ev.UserId,
		SessionId: ev.SessionId,
		NodeId:    p.nodeID,
		Remote:    ev.Remote,
		At:        ev.At,
	})
	if err != nil {
		p.log.Warn("[natsx] marshal event failed", zap.String("biz", biz), zap.Error(err))
		return
	}
	if err := p.producer.PublishOnce(ctx, biz, data, nil, ""); err != nil {
		p.log.Warn("[natsx] publish event failed",
			zap.String("biz", biz), zap.String("user", ev.UserId), zap.Error(err))
	}
}
