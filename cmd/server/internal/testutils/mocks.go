package testutils

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/shubham-shewale/quote-stream/cmd/server/internal/mirror"
	"github.com/shubham-shewale/quote-stream/pkg/models"
)

// MockClock returns CurrentTime until advanced.
type MockClock struct {
	CurrentTime time.Time
	Mu          sync.Mutex
}

func (m *MockClock) Now() time.Time {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	return m.CurrentTime
}

func (m *MockClock) Advance(d time.Duration) {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	m.CurrentTime = m.CurrentTime.Add(d)
}

func (m *MockClock) Set(t time.Time) {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	m.CurrentTime = t
}

type MockRand struct {
	ValInt   int
	ValFloat float64
}

func (m *MockRand) Intn(n int) int {
	if m.ValInt >= n {
		return n - 1
	}
	return m.ValInt
}
func (m *MockRand) Float64() float64 { return m.ValFloat }

// MockPublisher records every broadcast batch.
type MockPublisher struct {
	Batches []*models.Batch
	Mu      sync.Mutex
}

func (m *MockPublisher) Broadcast(batch *models.Batch) {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	m.Batches = append(m.Batches, batch)
}

func (m *MockPublisher) Count() int {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	return len(m.Batches)
}

// MockConn simulates the session's UDP delivery socket.
type MockConn struct {
	Written    [][]byte
	CloseCount int
	ShouldFail bool
	Mu         sync.Mutex
}

func (m *MockConn) Write(b []byte) (int, error) {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	if m.ShouldFail {
		return 0, errors.New("sendto: network is unreachable")
	}
	cp := make([]byte, len(b))
	copy(cp, b)
	m.Written = append(m.Written, cp)
	return len(b), nil
}

func (m *MockConn) Close() error {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	m.CloseCount++
	return nil
}

func (m *MockConn) Datagrams() [][]byte {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	out := make([][]byte, len(m.Written))
	copy(out, m.Written)
	return out
}

func (m *MockConn) Closes() int {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	return m.CloseCount
}

func (m *MockConn) SetFail(fail bool) {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	m.ShouldFail = fail
}

// MockPacketConn fails every read with Err until closed.
type MockPacketConn struct {
	Err    error
	Mu     sync.Mutex
	reads  int
	closed bool
}

func (m *MockPacketConn) ReadFrom(p []byte) (int, net.Addr, error) {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	if m.closed {
		return 0, nil, net.ErrClosed
	}
	m.reads++
	return 0, nil, m.Err
}

func (m *MockPacketConn) WriteTo(p []byte, addr net.Addr) (int, error) { return len(p), nil }

func (m *MockPacketConn) Close() error {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	m.closed = true
	return nil
}

func (m *MockPacketConn) LocalAddr() net.Addr {
	return &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 9000}
}

func (m *MockPacketConn) SetDeadline(t time.Time) error      { return nil }
func (m *MockPacketConn) SetReadDeadline(t time.Time) error  { return nil }
func (m *MockPacketConn) SetWriteDeadline(t time.Time) error { return nil }

func (m *MockPacketConn) Reads() int {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	return m.reads
}

// MockListener fails every Accept with Err until closed.
type MockListener struct {
	Err     error
	Mu      sync.Mutex
	accepts int
	closed  bool
}

func (m *MockListener) Accept() (net.Conn, error) {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	if m.closed {
		return nil, net.ErrClosed
	}
	m.accepts++
	return nil, m.Err
}

func (m *MockListener) Close() error {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	m.closed = true
	return nil
}

func (m *MockListener) Addr() net.Addr {
	return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 9000}
}

func (m *MockListener) Accepts() int {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	return m.accepts
}

type MockKafkaWriter struct {
	Messages   []kafka.Message
	Mu         sync.Mutex
	ShouldFail bool
	Closed     bool
}

func (m *MockKafkaWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	if m.ShouldFail {
		return errors.New("kafka error")
	}
	m.Messages = append(m.Messages, msgs...)
	return nil
}

func (m *MockKafkaWriter) Close() error {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	m.Closed = true
	return nil
}

type MockKafkaConn struct {
	CreatedTopics []string
}

func (m *MockKafkaConn) Controller() (kafka.Broker, error) {
	return kafka.Broker{Host: "localhost", Port: 9092}, nil
}
func (m *MockKafkaConn) Close() error { return nil }
func (m *MockKafkaConn) CreateTopics(topics ...kafka.TopicConfig) error {
	for _, t := range topics {
		m.CreatedTopics = append(m.CreatedTopics, t.Topic)
	}
	return nil
}
func (m *MockKafkaConn) ReadPartitions(topics ...string) ([]kafka.Partition, error) {
	return []kafka.Partition{{ID: 0}}, nil
}

type MockKafkaDialer struct {
	ConnSpy *MockKafkaConn
	Fail    bool
}

func (m *MockKafkaDialer) DialContext(ctx context.Context, network, address string) (mirror.KafkaConn, error) {
	if m.Fail {
		return nil, errors.New("connection refused")
	}
	if m.ConnSpy == nil {
		m.ConnSpy = &MockKafkaConn{}
	}
	return m.ConnSpy, nil
}

// MockSink records batches handed to it by the mirror.
type MockSink struct {
	Batches    []*models.Batch
	ShouldFail bool
	Closed     bool
	Mu         sync.Mutex
}

func (m *MockSink) Name() string { return "mock" }

func (m *MockSink) Write(ctx context.Context, batch *models.Batch) error {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	if m.ShouldFail {
		return errors.New("sink unavailable")
	}
	m.Batches = append(m.Batches, batch)
	return nil
}

func (m *MockSink) Close() error {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	m.Closed = true
	return nil
}

func (m *MockSink) Count() int {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	return len(m.Batches)
}

// ListenUDP opens a loopback UDP socket closed at test cleanup.
func ListenUDP(t *testing.T) *net.UDPConn {
	t.Helper()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("Failed to listen on UDP: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// Eventually polls cond until it holds or the timeout elapses.
func Eventually(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("Condition not met within %v: %s", timeout, msg)
}
