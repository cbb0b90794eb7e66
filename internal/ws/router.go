package ws

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	ErrMalformedFrame = errors.New("invalid message format")
	ErrUnknownFrame   = errors.New("unknown message type")
)

// internal (untyped) decoder signature.
type decoder func(raw []byte) (Frame, error)

// Router maps the "type" discriminator to a typed frame decoder.
type Router struct {
	decoders map[string]decoder
}

func NewRouter() *Router {
	r := &Router{decoders: make(map[string]decoder)}
	register[SetUsernameFrame](r, "setUsername")
	register[MessageFrame](r, "message")
	register[TypingFrame](r, "typing")
	register[PingFrame](r, "ping")
	return r
}

// register binds a frame type to its strongly-typed variant.
func register[F Frame](r *Router, frameType string) {
	if frameType == "" {
		panic("ws router: empty frame type")
	}
	if _, dup := r.decoders[frameType]; dup {
		panic("ws router: duplicate frame type " + frameType)
	}

	r.decoders[frameType] = func(raw []byte) (Frame, error) {
		var f F
		if err := json.Unmarshal(raw, &f); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
		}
		return f, nil
	}
}

// Decode parses one inbound frame into its variant.
func (r *Router) Decode(raw []byte) (Frame, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	if env.Type == "" {
		return nil, fmt.Errorf("%w: missing type", ErrMalformedFrame)
	}

	dec, ok := r.decoders[env.Type]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownFrame, env.Type)
	}
	return dec(raw)
}

// publicError is the text sent back to the client in an error frame. Decoder
// details stay in the logs.
func publicError(err error) string {
	if errors.Is(err, ErrMalformedFrame) {
		return ErrMalformedFrame.Error()
	}
	return err.Error()
}
