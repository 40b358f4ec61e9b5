package common

import (
	"errors"
	"testing"
)

func TestGuardHonoursPauseSet(t *testing.T) {
	set := NewPauseSet("Stablecoin")
	if err := Guard(set, "stablecoin"); !errors.Is(err, ErrModulePaused) {
		t.Fatalf("expected ErrModulePaused, got %v", err)
	}
	set.Set("stablecoin", false)
	if err := Guard(set, "stablecoin"); err != nil {
		t.Fatalf("expected resume, got %v", err)
	}
}

func TestGuardNilView(t *testing.T) {
	if err := Guard(nil, "stablecoin"); err != nil {
		t.Fatalf("nil view must not block: %v", err)
	}
	var set *PauseSet
	if set.IsPaused("stablecoin") {
		t.Fatal("nil set reports paused")
	}
}
