package browser_test

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/paiml/probar/internal/browser"
	"github.com/paiml/probar/internal/locator"
	"github.com/paiml/probar/internal/transport"
)

func containsRect(decl string) bool { return strings.Contains(decl, "getBoundingClientRect") }

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// scriptedConn is an in-memory transport.Conn that replies to requests by
// method name and can push asynchronous events, mirroring fake_conn_test.go
// at the transport package's layer but driven by CDP method names here.
type scriptedConn struct {
	mu       sync.Mutex
	inbound  chan []byte
	closed   bool
	handlers map[string]func(id uint32, params json.RawMessage) []byte
}

func newScriptedConn() *scriptedConn {
	return &scriptedConn{inbound: make(chan []byte, 64), handlers: map[string]func(uint32, json.RawMessage) []byte{}}
}

func (c *scriptedConn) on(method string, h func(id uint32, params json.RawMessage) []byte) {
	c.handlers[method] = h
}

func (c *scriptedConn) ReadMessage() ([]byte, error) {
	data, ok := <-c.inbound
	if !ok {
		return nil, context.Canceled
	}
	return data, nil
}

func (c *scriptedConn) WriteMessage(data []byte) error {
	var req struct {
		ID     uint32          `json:"id"`
		Method string          `json:"method"`
		Params json.RawMessage `json:"params"`
	}
	if err := json.Unmarshal(data, &req); err != nil {
		return err
	}
	h, ok := c.handlers[req.Method]
	if !ok {
		c.push([]byte(`{"id": ` + itoa(req.ID) + `, "result": {}}`))
		return nil
	}
	c.push(h(req.ID, req.Params))
	return nil
}

func (c *scriptedConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	close(c.inbound)
	return nil
}

func (c *scriptedConn) push(data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.inbound <- data
}

func itoa(v uint32) string {
	if v == 0 {
		return "0"
	}
	var buf [10]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	return string(buf[i:])
}

func newTestAgent(conn *scriptedConn) *browser.Agent {
	session := transport.NewSession(conn, nil)
	return browser.NewAgent(session, "target-1")
}

func TestGotoWaitsForLoadEvent(t *testing.T) {
	conn := newScriptedConn()
	conn.on("Page.navigate", func(id uint32, _ json.RawMessage) []byte {
		go func() {
			time.Sleep(30 * time.Millisecond) // let Goto subscribe before the event fires
			conn.push([]byte(`{"method": "Page.loadEventFired", "params": {}}`))
		}()
		return []byte(`{"id": ` + itoa(id) + `, "result": {}}`)
	})
	a := newTestAgent(conn)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, a.Goto(ctx, "https://example.com", browser.LoadComplete))
}

func TestClickResolvesThenActs(t *testing.T) {
	conn := newScriptedConn()
	conn.on("Runtime.evaluate", func(id uint32, _ json.RawMessage) []byte {
		return []byte(`{"id": ` + itoa(id) + `, "result": {"result": {"value": {"objectIds": ["obj-1"]}}}}`)
	})
	conn.on("Runtime.callFunctionOn", func(id uint32, params json.RawMessage) []byte {
		var p struct {
			FunctionDeclaration string `json:"functionDeclaration"`
		}
		_ = json.Unmarshal(params, &p)
		if containsRect(p.FunctionDeclaration) {
			return []byte(`{"id": ` + itoa(id) + `, "result": {"result": {"value": {"X":0,"Y":0,"Width":10,"Height":10}}}}`)
		}
		return []byte(`{"id": ` + itoa(id) + `, "result": {"result": {"value": true}}}`)
	})
	a := newTestAgent(conn)

	policy := locator.WaitPolicy{TimeoutTotal: time.Second, PollInterval: 10 * time.Millisecond, Predicates: []string{"visible", "enabled"}}
	err := a.Click(context.Background(), locator.CSS("button.submit"), policy)
	require.NoError(t, err)
}
