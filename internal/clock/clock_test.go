package clock

import (
	"testing"
	"time"
)

func TestStepAdvances(t *testing.T) {
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	c := NewStep(start, time.Second)

	first := c.Now()
	second := c.Now()
	if !first.Equal(start) {
		t.Errorf("expected first tick at start, got %s", first)
	}
	if second.Sub(first) != time.Second {
		t.Errorf("expected one second step, got %s", second.Sub(first))
	}
}

func TestFixed(t *testing.T) {
	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	c := Fixed(at)
	if !c.Now().Equal(at) || !c.Now().Equal(at) {
		t.Error("fixed clock should not move")
	}
}
