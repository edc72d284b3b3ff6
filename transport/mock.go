package transport

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/quaydb/pgxec/wire"
)

// MockTransport is an in-memory Transport for engine/stmt tests. Grounded on
// the teacher's MockTransport (transport/mock/transport.go), retargeted to
// hand back queued wire.Frame values instead of raw byte slices.
type MockTransport struct {
	mu sync.Mutex

	sendErr    error
	recvErr    error
	recvQueue  []wire.Frame
	healthy    bool
	auxFactory func() (Transport, error)

	sendCalls atomic.Int32
	recvCalls atomic.Int32
	closed    atomic.Bool

	sendHistory [][]byte
}

// NewMockTransport returns a healthy MockTransport with an empty recv queue.
func NewMockTransport() *MockTransport {
	return &MockTransport{healthy: true}
}

// WithSendError configures Send to fail with err.
func (m *MockTransport) WithSendError(err error) *MockTransport {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sendErr = err
	return m
}

// WithRecvError configures Recv to fail with err once the queue is drained.
func (m *MockTransport) WithRecvError(err error) *MockTransport {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recvErr = err
	return m
}

// QueueFrame appends a frame to be returned by successive Recv calls, in
// FIFO order.
func (m *MockTransport) QueueFrame(f wire.Frame) *MockTransport {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recvQueue = append(m.recvQueue, f)
	return m
}

// WithHealthy configures the value returned by IsAlive.
func (m *MockTransport) WithHealthy(healthy bool) *MockTransport {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.healthy = healthy
	return m
}

// WithAuxiliary configures the Transport returned by OpenAuxiliary.
func (m *MockTransport) WithAuxiliary(factory func() (Transport, error)) *MockTransport {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.auxFactory = factory
	return m
}

func (m *MockTransport) Send(ctx context.Context, frameBytes []byte) error {
	m.sendCalls.Add(1)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed.Load() {
		return fmt.Errorf("transport: mock is closed")
	}
	if m.sendErr != nil {
		return m.sendErr
	}
	buf := make([]byte, len(frameBytes))
	copy(buf, frameBytes)
	m.sendHistory = append(m.sendHistory, buf)
	return nil
}

func (m *MockTransport) Recv(ctx context.Context) (wire.Frame, error) {
	m.recvCalls.Add(1)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed.Load() {
		return wire.Frame{}, fmt.Errorf("transport: mock is closed")
	}
	if len(m.recvQueue) > 0 {
		f := m.recvQueue[0]
		m.recvQueue = m.recvQueue[1:]
		return f, nil
	}
	if m.recvErr != nil {
		return wire.Frame{}, m.recvErr
	}
	return wire.Frame{}, fmt.Errorf("transport: mock recv queue empty")
}

func (m *MockTransport) OpenAuxiliary(ctx context.Context) (Transport, error) {
	m.mu.Lock()
	factory := m.auxFactory
	m.mu.Unlock()
	if factory != nil {
		return factory()
	}
	return NewMockTransport(), nil
}

func (m *MockTransport) Close() error {
	m.closed.Store(true)
	return nil
}

func (m *MockTransport) RemoteAddr() string { return "mock" }

func (m *MockTransport) IsAlive() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.healthy && !m.closed.Load()
}

func (m *MockTransport) LastActivity() time.Time { return time.Now() }

// SendHistory returns a copy of every frame passed to Send, in order.
func (m *MockTransport) SendHistory() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]byte, len(m.sendHistory))
	copy(out, m.sendHistory)
	return out
}

// SendCallCount reports how many times Send was called.
func (m *MockTransport) SendCallCount() int { return int(m.sendCalls.Load()) }

// RecvCallCount reports how many times Recv was called.
func (m *MockTransport) RecvCallCount() int { return int(m.recvCalls.Load()) }
