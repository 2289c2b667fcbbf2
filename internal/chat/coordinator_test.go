package chat

import (
	"context"
	"testing"
)

func TestCoordinatorBeginSupersedesPrevious(t *testing.T) {
	c := NewCoordinator()

	ctx1, token1 := c.Begin(context.Background())
	_, token2 := c.Begin(context.Background())

	if ctx1.Err() == nil {
		t.Error("first request's context not cancelled by the second Begin")
	}
	if token1 == token2 {
		t.Error("tokens not unique per request")
	}
	if c.Finish(token1) {
		t.Error("superseded request's Finish reported current")
	}
	if !c.Finish(token2) {
		t.Error("current request's Finish reported stale")
	}
}

func TestCoordinatorFinishIsTerminal(t *testing.T) {
	c := NewCoordinator()
	_, token := c.Begin(context.Background())

	if !c.Finish(token) {
		t.Fatal("Finish() reported stale for the current token")
	}
	if c.Finish(token) {
		t.Error("second Finish() with the same token reported current")
	}
	if c.InFlight() {
		t.Error("InFlight() true after Finish")
	}
}

func TestCoordinatorCancel(t *testing.T) {
	c := NewCoordinator()

	if c.Cancel() {
		t.Error("Cancel() with nothing in flight reported an abort")
	}

	ctx, token := c.Begin(context.Background())
	if !c.InFlight() {
		t.Fatal("InFlight() false after Begin")
	}
	if !c.Cancel() {
		t.Fatal("Cancel() did not abort the in-flight request")
	}
	if ctx.Err() == nil {
		t.Error("cancelled request's context still live")
	}
	// The cancelled request's completion must read as stale.
	if c.Finish(token) {
		t.Error("Finish() after Cancel reported current")
	}
}
