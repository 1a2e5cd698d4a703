package config

import (
	"testing"
	"time"
)

func TestGetEnvFloat(t *testing.T) {
	t.Setenv("TEST_FLOAT", "2.5")
	if got := GetEnvFloat("TEST_FLOAT", 1); got != 2.5 {
		t.Errorf("expected 2.5, got %v", got)
	}
	t.Setenv("TEST_FLOAT", "banana")
	if got := GetEnvFloat("TEST_FLOAT", 1); got != 1 {
		t.Errorf("expected fallback 1, got %v", got)
	}
	if got := GetEnvFloat("TEST_FLOAT_UNSET", 3); got != 3 {
		t.Errorf("expected fallback 3, got %v", got)
	}
}

func TestGetEnvDuration(t *testing.T) {
	t.Setenv("TEST_DURATION", "250ms")
	if got := GetEnvDuration("TEST_DURATION", time.Second); got != 250*time.Millisecond {
		t.Errorf("expected 250ms, got %v", got)
	}
	t.Setenv("TEST_DURATION", "not-a-duration")
	if got := GetEnvDuration("TEST_DURATION", time.Second); got != time.Second {
		t.Errorf("expected fallback 1s, got %v", got)
	}
	if got := GetEnvDuration("TEST_DURATION_UNSET", 5*time.Second); got != 5*time.Second {
		t.Errorf("expected fallback 5s, got %v", got)
	}
}
