package natsx

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"PPRelay/service/chat"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

type fakeConn struct {
	mu      sync.Mutex
	msgs    []*nats.Msg
	err     error
	drained bool
}

func (f *fakeConn) PublishMsg(m *nats.Msg) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, m)
	return nil
}

func (f *fakeConn) Drain() error {
	f.drained = true
	return nil
}

func newTestPublisher(t *testing.T, fc *fakeConn) *EventPublisher {
	t.Helper()
	p, err := NewEventPublisher(newNatsxClient(NatsxConfig{}, fc), "relay", "node-a", zap.NewNop())
	if err != nil {
		t.Fatalf("NewEventPublisher: %v", err)
	}
	return p
}

func TestEventPublisherSubjectsAndBody(t *testing.T) {
	fc := &fakeConn{}
	p := newTestPublisher(t, fc)
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	ev := chat.SessionEvent{UserId: "alice", SessionId: "42", Remote: "10.0.0.1", At: at}

	p.OnRegister(context.Background(), ev)
	p.OnRemove(context.Background(), ev)

	if len(fc.msgs) != 2 {
		t.Fatalf("published %d messages, want 2", len(fc.msgs))
	}
	wantSubjects := []string{"relay.session.registered", "relay.session.closed"}
	for i, m := range fc.msgs {
		if m.Subject != wantSubjects[i] {
			t.Errorf("msg %d subject = %q, want %q", i, m.Subject, wantSubjects[i])
		}
		if _, err := uuid.Parse(m.Header.Get(MsgIdHeader)); err != nil {
			t.Errorf("msg %d has no uuid %s header: %v", i, MsgIdHeader, err)
		}
		var body SessionEventMsg
		if err := json.Unmarshal(m.Data, &body); err != nil {
			t.Fatalf("msg %d body: %v", i, err)
		}
		if body.UserId != "alice" || body.NodeId != "node-a" || body.SessionId != "42" || !body.At.Equal(at) {
			t.Errorf("msg %d body = %+v", i, body)
		}
	}
	if fc.msgs[0].Header.Get(MsgIdHeader) == fc.msgs[1].Header.Get(MsgIdHeader) {
		t.Error("message ids must differ")
	}
}

func TestEventPublisherSwallowsErrors(t *testing.T) {
	fc := &fakeConn{err: errors.New("nats: connection closed")}
	p := newTestPublisher(t, fc)
	// must not panic or block
	p.OnRegister(context.Background(), chat.SessionEvent{UserId: "bob"})
}

func TestProducerUnknownRoute(t *testing.T) {
	c := newNatsxClient(NatsxConfig{}, &fakeConn{})
	if err := NewNatsxProducer(c).Publish(context.Background(), "nope", nil, nil); err == nil {
		t.Error("expected route not found error")
	}
	if err := c.RegisterRoute(NatsxRoute{Biz: "x"}); err == nil {
		t.Error("route without subject should be rejected")
	}
}

func TestPublishOnceKeepsGivenID(t *testing.T) {
	fc := &fakeConn{}
	c := newNatsxClient(NatsxConfig{}, fc)
	_ = c.RegisterRoute(NatsxRoute{Biz: "b", Subject: "s"})
	if err := NewNatsxProducer(c).PublishOnce(context.Background(), "b", []byte("x"), map[string]string{"k": "v"}, "fixed"); err != nil {
		t.Fatalf("PublishOnce: %v", err)
	}
	m := fc.msgs[0]
	if m.Header.Get(MsgIdHeader) != "fixed" || m.Header.Get("k") != "v" {
		t.Errorf("headers = %v", m.Header)
	}
}

func TestSubjectWithoutPrefix(t *testing.T) {
	if got := subject("", BizSessionClosed); got != "session.closed" {
		t.Errorf("subject = %q", got)
	}
}

func TestCloseDrains(t *testing.T) {
	fc := &fakeConn{}
	if err := newNatsxClient(NatsxConfig{}, fc).Close(); err != nil || !fc.drained {
		t.Errorf("Close err=%v drained=%v", err, fc.drained)
	}
}

func TestNewNatsxClientRequiresServers(t *testing.T) {
	if _, err := NewNatsxClient(NatsxConfig{}); err == nil {
		t.Error("expected error without servers")
	}
}
