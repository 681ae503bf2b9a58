package transport_test

import (
	"errors"
	"sync"
)

var errConnClosed = errors.New("fake conn closed")

// fakeConn is an in-memory Conn used to drive the Session pump without a
// real browser, mirroring the httptest.NewServer fixtures in the teacher's
// browser_integration_test.go but at the transport layer.
type fakeConn struct {
	mu       sync.Mutex
	inbound  chan []byte
	outbound [][]byte
	closed   bool
}

func newFakeConn() *fakeConn {
	return &fakeConn{inbound: make(chan []byte, 64)}
}

func (f *fakeConn) ReadMessage() ([]byte, error) {
	data, ok := <-f.inbound
	if !ok {
		return nil, errConnClosed
	}
	return data, nil
}

func (f *fakeConn) WriteMessage(data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return errConnClosed
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	f.outbound = append(f.outbound, cp)
	return nil
}

func (f *fakeConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil
	}
	f.closed = true
	close(f.inbound)
	return nil
}

// push injects an inbound frame as though it arrived from the far end.
func (f *fakeConn) push(data []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.inbound <- data
}

func (f *fakeConn) lastWritten() []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.outbound) == 0 {
		return nil
	}
	return f.outbound[len(f.outbound)-1]
}
