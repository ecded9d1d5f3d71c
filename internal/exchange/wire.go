package exchange

import (
	"errors"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// Frame type tags. Each feed message and order action travels as a two-field
// msgpack map: {"t": <tag>, "b": <body>}.
const (
	frameBook      = "book"
	frameTrade     = "trade"
	frameAck       = "ack"
	frameReject    = "reject"
	frameCancelled = "cancelled"
	frameFill      = "fill"
	frameInsert    = "insert"
	frameCancel    = "cancel"
	frameAmend     = "amend"
	frameLogin     = "login"
)

var ErrUnknownFrame = errors.New("unknown frame type")

type frame struct {
	Type string             `msgpack:"t"`
	Body msgpack.RawMessage `msgpack:"b"`
}

func encodeFrame(tag string, body any) ([]byte, error) {
	raw, err := msgpack.Marshal(body)
	if err != nil {
		return nil, err
	}
	return msgpack.Marshal(frame{Type: tag, Body: raw})
}

// EncodeIntent serializes one outbound order action.
func EncodeIntent(intent Intent) ([]byte, error) {
	switch v := intent.(type) {
	case Insert:
		if v.Volume <= 0 {
			return nil, errors.New("insert volume must be > 0")
		}
		if v.Price <= 0 {
			return nil, errors.New("insert price must be > 0")
		}
		return encodeFrame(frameInsert, v)
	case Cancel:
		if v.OrderID == 0 {
			return nil, errors.New("cancel order id is required")
		}
		return encodeFrame(frameCancel, v)
	case Amend:
		if v.OrderID == 0 {
			return nil, errors.New("amend order id is required")
		}
		if v.NewVolume < 0 {
			return nil, errors.New("amend volume must be >= 0")
		}
		return encodeFrame(frameAmend, v)
	case Login:
		if v.Team == "" {
			return nil, errors.New("login team is required")
		}
		return encodeFrame(frameLogin, v)
	}
	return nil, fmt.Errorf("%w: %T", ErrUnknownFrame, intent)
}

// DecodeEvent parses one inbound feed frame.
func DecodeEvent(data []byte) (Event, error) {
	var f frame
	if err := msgpack.Unmarshal(data, &f); err != nil {
		return nil, err
	}
	switch f.Type {
	case frameBook:
		var ev BookUpdate
		if err := msgpack.Unmarshal(f.Body, &ev); err != nil {
			return nil, err
		}
		return ev, nil
	case frameTrade:
		var ev TradeTick
		if err := msgpack.Unmarshal(f.Body, &ev); err != nil {
			return nil, err
		}
		return ev, nil
	case frameAck:
		var ev OrderAck
		if err := msgpack.Unmarshal(f.Body, &ev); err != nil {
			return nil, err
		}
		return ev, nil
	case frameReject:
		var ev OrderReject
		if err := msgpack.Unmarshal(f.Body, &ev); err != nil {
			return nil, err
		}
		return ev, nil
	case frameCancelled:
		var ev OrderCancelled
		if err := msgpack.Unmarshal(f.Body, &ev); err != nil {
			return nil, err
		}
		return ev, nil
	case frameFill:
		var ev Fill
		if err := msgpack.Unmarshal(f.Body, &ev); err != nil {
			return nil, err
		}
		return ev, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownFrame, f.Type)
}

// EncodeEvent is the inverse of DecodeEvent. The live session never sends
// events; the replay harness uses this to build test fixtures.
func EncodeEvent(ev Event) ([]byte, error) {
	switch v := ev.(type) {
	case BookUpdate:
		return encodeFrame(frameBook, v)
	case TradeTick:
		return encodeFrame(frameTrade, v)
	case OrderAck:
		return encodeFrame(frameAck, v)
	case OrderReject:
		return encodeFrame(frameReject, v)
	case OrderCancelled:
		return encodeFrame(frameCancelled, v)
	case Fill:
		return encodeFrame(frameFill, v)
	}
	return nil, fmt.Errorf("%w: %T", ErrUnknownFrame, ev)
}
