// Package transport implements the Session Transport of spec.md §4.1: a
// single control-channel connection, multiplexed between pending request
// awaiters and event subscribers by one internal pump goroutine. The pump
// is the sole owner of the correlation map and the subscriber table; every
// other goroutine communicates with it by channel, never by direct mutation,
// matching the "Shared-resource policy" in spec.md §5.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/paiml/probar/internal/logging"
	"github.com/paiml/probar/internal/perr"
	"github.com/paiml/probar/internal/wire"
)

const component = "transport"

// Session owns a Conn and runs the multiplexing pump described in
// spec.md §4.1. Create with NewSession; call Close exactly once (a second
// Close is a no-op, per spec.md §8's idempotence property).
type Session struct {
	conn   Conn
	logger *zap.Logger
	nextID uint32

	sendCh      chan sendRequest
	cancelCh    chan wire.RequestID
	subscribeCh chan subscribeRequest
	unsubCh     chan *Subscription
	closeCh     chan struct{}
	closedCh    chan struct{}
	closeErr    atomic.Value // error
}

type sendRequest struct {
	id      wire.RequestID
	method  string
	params  interface{}
	replyCh chan sendResult
}

type sendResult struct {
	result json.RawMessage
	err    error
}

type subscribeRequest struct {
	topic string
	sub   *Subscription
}

// Subscription is a cancellable, non-restartable lazy sequence of events for
// one topic, delivered in wire order (spec.md §4.1, §5).
type Subscription struct {
	topic  string
	events chan wire.Event
	owner  *Session
}

// Events returns the channel of events for this subscription. The channel
// is closed (the "end-of-stream marker") when the session closes or Close
// is called on the subscription.
func (s *Subscription) Events() <-chan wire.Event { return s.events }

// Close cancels the subscription. Safe to call more than once.
func (s *Subscription) Close() {
	select {
	case s.owner.unsubCh <- s:
	case <-s.owner.closedCh:
	}
}

// NewSession takes ownership of conn and starts the pump goroutine.
func NewSession(conn Conn, logger *zap.Logger) *Session {
	if logger == nil {
		logger = logging.Nop()
	}
	s := &Session{
		conn:        conn,
		logger:      logger.With(zap.String("component", component)),
		sendCh:      make(chan sendRequest),
		cancelCh:    make(chan wire.RequestID),
		subscribeCh: make(chan subscribeRequest),
		unsubCh:     make(chan *Subscription),
		closeCh:     make(chan struct{}),
		closedCh:    make(chan struct{}),
	}
	inbound := make(chan decodedFrame, 64)
	readErr := make(chan error, 1)
	go s.readLoop(inbound, readErr)
	go s.pump(inbound, readErr)
	return s
}

type decodedFrame struct {
	kind  wire.FrameKind
	reply *wire.Reply
	event *wire.Event
}

func (s *Session) readLoop(inbound chan<- decodedFrame, readErr chan<- error) {
	for {
		data, err := s.conn.ReadMessage()
		if err != nil {
			readErr <- err
			return
		}
		kind, reply, event, err := wire.Decode(data)
		if err != nil {
			s.logger.Warn("dropping malformed frame", zap.Error(err))
			continue
		}
		select {
		case inbound <- decodedFrame{kind: kind, reply: reply, event: event}:
		case <-s.closedCh:
			return
		}
	}
}

// pump is the sole owner of the correlation map and the subscriber table.
func (s *Session) pump(inbound <-chan decodedFrame, readErr <-chan error) {
	pending := make(map[wire.RequestID]chan sendResult)
	subscribers := make(map[string][]*Subscription)

	poison := func(err error) {
		for id, ch := range pending {
			ch <- sendResult{err: perr.New(perr.KindTransportClosed, component, "send", "request_id="+itoa(uint32(id)), err)}
		}
		pending = map[wire.RequestID]chan sendResult{}
		for _, subs := range subscribers {
			for _, sub := range subs {
				close(sub.events)
			}
		}
		subscribers = map[string][]*Subscription{}
	}

	defer func() {
		_ = s.conn.Close()
		close(s.closedCh)
	}()

	for {
		select {
		case <-s.closeCh:
			poison(errClosed)
			return

		case err := <-readErr:
			s.logger.Warn("transport fault, poisoning outstanding awaiters", zap.Error(err))
			s.closeErr.Store(err)
			poison(err)
			return

		case frame := <-inbound:
			switch frame.kind {
			case wire.FrameReply:
				if ch, ok := pending[frame.reply.ID]; ok {
					delete(pending, frame.reply.ID)
					var errOut error
					if frame.reply.Error != nil {
						errOut = perr.New(perr.KindRemoteError, component, "send", "", frame.reply.Error)
					}
					ch <- sendResult{result: frame.reply.Result, err: errOut}
				}
				// else: a late reply after the awaiter's deadline already
				// expired and removed the correlation entry. Discarded, as
				// required by spec.md §5's cancellation semantics.

			case wire.FrameEvent:
				for _, sub := range subscribers[frame.event.Method] {
					select {
					case sub.events <- *frame.event:
					default:
						s.logger.Warn("slow subscriber dropped event", zap.String("topic", frame.event.Method))
					}
				}
			}

		case req := <-s.sendCh:
			data, err := wire.EncodeRequest(req.id, req.method, req.params)
			if err != nil {
				req.replyCh <- sendResult{err: perr.New(perr.KindProtocolError, component, req.method, "", err)}
				continue
			}
			pending[req.id] = req.replyCh
			if err := s.conn.WriteMessage(data); err != nil {
				delete(pending, req.id)
				req.replyCh <- sendResult{err: perr.New(perr.KindTransportClosed, component, req.method, "", err)}
			}

		case id := <-s.cancelCh:
			delete(pending, id)

		case sr := <-s.subscribeCh:
			subscribers[sr.topic] = append(subscribers[sr.topic], sr.sub)

		case sub := <-s.unsubCh:
			subs := subscribers[sub.topic]
			for i, s2 := range subs {
				if s2 == sub {
					subscribers[sub.topic] = append(subs[:i], subs[i+1:]...)
					close(sub.events)
					break
				}
			}
		}
	}
}

// Send dispatches method/params and suspends until a reply arrives, the
// context is done, or the transport faults. Exactly one of (reply, error,
// transport-closed) is observed, per spec.md §8 property 6.
func (s *Session) Send(ctx context.Context, method string, params interface{}) (json.RawMessage, error) {
	id := wire.RequestID(atomic.AddUint32(&s.nextID, 1))
	replyCh := make(chan sendResult, 1)

	select {
	case s.sendCh <- sendRequest{id: id, method: method, params: params, replyCh: replyCh}:
	case <-s.closedCh:
		return nil, perr.New(perr.KindTransportClosed, component, method, "", errClosed)
	case <-ctx.Done():
		return nil, perr.New(perr.KindTimeout, component, method, "", ctx.Err())
	}

	select {
	case res := <-replyCh:
		return res.result, res.err
	case <-ctx.Done():
		select {
		case s.cancelCh <- id:
		case <-s.closedCh:
		}
		return nil, perr.New(perr.KindTimeout, component, method, "", ctx.Err())
	case <-s.closedCh:
		return nil, perr.New(perr.KindTransportClosed, component, method, "", errClosed)
	}
}

// Subscribe registers interest in topic and returns a Subscription whose
// Events() channel receives matching inbound events in wire order,
// starting from the moment Subscribe returns. The channel buffers 32
// events; an event that arrives while the buffer is full is dropped and
// logged.
func (s *Session) Subscribe(topic string) *Subscription {
	sub := &Subscription{topic: topic, events: make(chan wire.Event, 32), owner: s}
	select {
	case s.subscribeCh <- subscribeRequest{topic: topic, sub: sub}:
	case <-s.closedCh:
		close(sub.events)
	}
	return sub
}

// Close drains the session: no new sends are accepted, outstanding
// awaiters fail with TransportClosed, and subscribers observe end-of-stream.
// A second Close is a no-op.
func (s *Session) Close() error {
	select {
	case <-s.closedCh:
		return nil
	default:
	}
	select {
	case s.closeCh <- struct{}{}:
	case <-s.closedCh:
	}
	<-s.closedCh
	if err, ok := s.closeErr.Load().(error); ok {
		return err
	}
	return nil
}

// Done returns a channel closed once the session has fully shut down.
func (s *Session) Done() <-chan struct{} { return s.closedCh }

var errClosed = errors.New("transport closed")

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
