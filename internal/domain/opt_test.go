package domain_test

import (
	"testing"

	"github.com/cmtonkinson/brain-scheduler/internal/domain"
)

func TestOpt_UnsetVsZeroValue(t *testing.T) {
	unset := domain.Unset[int]()
	if unset.IsSet() {
		t.Error("Unset() should report IsSet() false")
	}

	zeroButSet := domain.Set(0)
	if !zeroButSet.IsSet() {
		t.Error("Set(0) should report IsSet() true even though the value is the zero value")
	}
	if zeroButSet.Value != 0 {
		t.Errorf("Value = %d, want 0", zeroButSet.Value)
	}
}

func TestOpt_SetPreservesValue(t *testing.T) {
	o := domain.Set("paused")
	if !o.IsSet() || o.Value != "paused" {
		t.Errorf("Set(%q) = {%q, %v}, want set with value preserved", "paused", o.Value, o.IsSet())
	}
}
