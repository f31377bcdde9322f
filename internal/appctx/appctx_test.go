package appctx

import "testing"

func TestLevelFromDebug(t *testing.T) {
	if got := levelFromDebug(true); got != "debug" {
		t.Errorf("levelFromDebug(true) = %q, want %q", got, "debug")
	}
	if got := levelFromDebug(false); got != "info" {
		t.Errorf("levelFromDebug(false) = %q, want %q", got, "info")
	}
}
