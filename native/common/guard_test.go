package common

import (
	"errors"
	"testing"

	ledgererrors "leadfive/core/errors"
)

type pauseFlag bool

func (p pauseFlag) Paused() bool { return bool(p) }

func TestGuard(t *testing.T) {
	if err := Guard(nil, "register"); err != nil {
		t.Fatalf("nil view should pass: %v", err)
	}
	if err := Guard(pauseFlag(false), "register"); err != nil {
		t.Fatalf("unpaused should pass: %v", err)
	}
	if err := Guard(pauseFlag(true), "register"); !errors.Is(err, ledgererrors.ErrPaused) {
		t.Fatalf("expected ErrPaused, got %v", err)
	}
}
