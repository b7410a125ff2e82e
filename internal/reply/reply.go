// Package reply decides what, if anything, the hub answers to an inbound
// direct message.
package reply

import "context"

// Request is an inbound direct text eligible for a reply.
type Request struct {
	SessionID string
	From      string
	Text      string
}

// Responder sends a reply on the session the request arrived on.
type Responder interface {
	Reply(ctx context.Context, to, text string) error
}

// Handler reacts to inbound messages.
type Handler interface {
	Handle(ctx context.Context, req Request, r Responder) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, req Request, r Responder) error

func (f HandlerFunc) Handle(ctx context.Context, req Request, r Responder) error {
	return f(ctx, req, r)
}

// Nop never replies.
type Nop struct{}

func (Nop) Handle(context.Context, Request, Responder) error { return nil }
