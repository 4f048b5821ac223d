package chat

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

// MockConn implements Connection for testing
type MockConn struct {
	id          string
	mu          sync.Mutex
	writtenData [][]byte
	writeErr    error
	closed      atomic.Bool
}

func newMockConn(id string) *MockConn {
	return &MockConn{id: id, writtenData: make([][]byte, 0)}
}

func (m *MockConn) ID() string { return m.id }

func (m *MockConn) Send(ctx context.Context, data []byte) error {
	if m.closed.Load() {
		return errors.New("socket closed")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.writeErr != nil {
		return m.writeErr
	}
	m.writtenData = append(m.writtenData, append([]byte(nil), data...))
	return nil
}

func (m *MockConn) Close() error {
	m.closed.Store(true)
	return nil
}

func (m *MockConn) setWriteErr(err error) {
	m.mu.Lock()
	m.writeErr = err
	m.mu.Unlock()
}

func (m *MockConn) GetWrittenData() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([][]byte, len(m.writtenData))
	copy(result, m.writtenData)
	return result
}

func (m *MockConn) reset() {
	m.mu.Lock()
	m.writtenData = m.writtenData[:0]
	m.mu.Unlock()
}

// recordingObserver captures observer callbacks for testing
type recordingObserver struct {
	mu     sync.Mutex
	events []string
}

func (o *recordingObserver) OnRegister(ctx context.Context, ev SessionEvent) {
	o.mu.Lock()
	o.events = append(o.events, "register:"+ev.UserId+"@"+ev.SessionId)
	o.mu.Unlock()
}

func (o *recordingObserver) OnRemove(ctx context.Context, ev SessionEvent) {
	o.mu.Lock()
	o.events = append(o.events, "remove:"+ev.UserId+"@"+ev.SessionId)
	o.mu.Unlock()
}

func (o *recordingObserver) Events() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.events...)
}
