package core

import (
	"context"
	"fmt"
)

// ResponseGenerator produces a reply for a chat message. Implementations may
// call out over the network; the coordinator never holds a balance lock
// across Generate.
type ResponseGenerator interface {
	Generate(ctx context.Context, message string) (string, error)
}

// DummyGenerator is the placeholder generator used until a real model is
// wired in. It echoes the message back.
type DummyGenerator struct{}

func (DummyGenerator) Generate(_ context.Context, message string) (string, error) {
	return fmt.Sprintf("This is a dummy AI response to your message: '%s'", message), nil
}
