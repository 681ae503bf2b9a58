// Package wire implements the Wire Codec: framing and parsing of the
// Chrome DevTools-style request/reply/event messages described in
// spec.md §4.1 and §6. The codec has no notion of a connection — it only
// knows how to turn a Go value into wire bytes and back.
package wire

import (
	"encoding/json"
	"fmt"
)

// RequestID is a monotonically increasing identifier correlating a request
// to its reply.
type RequestID uint32

// Request is an outbound call: {"id": u32, "method": string, "params": object}.
type Request struct {
	ID     RequestID      `json:"id"`
	Method string         `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

// ErrorDescriptor is the {"code": i32, "message": string} shape carried by
// a failed reply.
type ErrorDescriptor struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *ErrorDescriptor) Error() string {
	return fmt.Sprintf("remote error %d: %s", e.Code, e.Message)
}

// Reply is an inbound response to a prior Request: either Result or Error
// is populated, never both.
type Reply struct {
	ID     RequestID        `json:"id"`
	Result json.RawMessage  `json:"result,omitempty"`
	Error  *ErrorDescriptor `json:"error,omitempty"`
}

// Event is an inbound, unsolicited message: {"method": string, "params": object}.
// Events carry no "id" field; that absence is how the codec tells a Reply
// from an Event on ingest.
type Event struct {
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

// FrameKind classifies a decoded inbound frame.
type FrameKind int

const (
	FrameUnknown FrameKind = iota
	FrameReply
	FrameEvent
)

// rawFrame is used to sniff whether an inbound frame is a reply or an event
// before committing to a concrete type: a reply always carries "id", an
// event never does.
type rawFrame struct {
	ID     *RequestID       `json:"id"`
	Method string           `json:"method"`
	Params json.RawMessage  `json:"params"`
	Result json.RawMessage  `json:"result"`
	Error  *ErrorDescriptor `json:"error"`
}

// EncodeRequest marshals a Request to its wire representation.
func EncodeRequest(id RequestID, method string, params interface{}) ([]byte, error) {
	raw, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("wire: encode params for %s: %w", method, err)
	}
	req := Request{ID: id, Method: method, Params: raw}
	out, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("wire: encode request %s: %w", method, err)
	}
	return out, nil
}

// Decode classifies and parses an inbound frame, returning exactly one of
// (*Reply, *Event) populated according to FrameKind. A request-shaped
// frame (both "id" and "method") is FrameUnknown with neither populated
// and no error.
func Decode(data []byte) (FrameKind, *Reply, *Event, error) {
	var raw rawFrame
	if err := json.Unmarshal(data, &raw); err != nil {
		return FrameUnknown, nil, nil, fmt.Errorf("wire: decode frame: %w", err)
	}

	if raw.ID != nil && raw.Method != "" {
		return FrameUnknown, nil, nil, nil
	}
	if raw.ID != nil {
		return FrameReply, &Reply{ID: *raw.ID, Result: raw.Result, Error: raw.Error}, nil, nil
	}
	if raw.Method != "" {
		return FrameEvent, nil, &Event{Method: raw.Method, Params: raw.Params}, nil
	}
	return FrameUnknown, nil, nil, fmt.Errorf("wire: frame is neither a reply nor an event: %s", string(data))
}

// DecodeResult unmarshals a Reply's Result into v, or returns the carried
// remote error if the reply represents a failure.
func DecodeResult(reply *Reply, v interface{}) error {
	if reply.Error != nil {
		return reply.Error
	}
	if v == nil || len(reply.Result) == 0 {
		return nil
	}
	if err := json.Unmarshal(reply.Result, v); err != nil {
		return fmt.Errorf("wire: decode result: %w", err)
	}
	return nil
}
