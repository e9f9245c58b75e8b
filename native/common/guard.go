package common

import ledgererrors "leadfive/core/errors"

// PauseView reports the ledger-wide pause switch.
type PauseView interface {
	Paused() bool
}

// Guard rejects mutations while the ledger is paused.
func Guard(p PauseView, op string) error {
	if p == nil {
		return nil
	}
	if p.Paused() {
		return ledgererrors.ErrPaused.With("op", "%s rejected while paused", op)
	}
	return nil
}
