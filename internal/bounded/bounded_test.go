package bounded

import (
	"math"
	"testing"
	"time"
)

func TestClamp(t *testing.T) {
	if got := Unit(1.4); got != 1 {
		t.Fatalf("Unit(1.4) = %v, want 1", got)
	}
	if got := Unit(-0.2); got != 0 {
		t.Fatalf("Unit(-0.2) = %v, want 0", got)
	}
	if got := Signed(-3); got != -1 {
		t.Fatalf("Signed(-3) = %v, want -1", got)
	}
	if got := Unit(math.NaN()); got != 0 {
		t.Fatalf("Unit(NaN) = %v, want 0", got)
	}
}

func TestRetainComposes(t *testing.T) {
	whole := Retain(0.8, 4*time.Second)
	split := Retain(0.8, 2*time.Second) * Retain(0.8, 2*time.Second)
	if math.Abs(whole-split) > 1e-12 {
		t.Fatalf("retain over 4s = %v, two 2s steps = %v", whole, split)
	}
	if got := Retain(0.8, time.Second); math.Abs(got-0.8) > 1e-12 {
		t.Fatalf("retain over 1s = %v, want 0.8", got)
	}
}

func TestStep(t *testing.T) {
	if got := Step(0.01, 500*time.Millisecond); math.Abs(got-0.005) > 1e-12 {
		t.Fatalf("got %v, want 0.005", got)
	}
	if got := Step(0.01, -time.Second); got != 0 {
		t.Fatalf("negative dt stepped %v", got)
	}
}
