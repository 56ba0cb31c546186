package util

import (
	"testing"
	"time"
)

func TestGetEnvNumeric(t *testing.T) {
	t.Setenv("KIWI_TEST_NUM", "0.75")
	if got := GetEnvNumeric("KIWI_TEST_NUM", 1); got != 0.75 {
		t.Fatalf("expected 0.75, got %v", got)
	}

	t.Setenv("KIWI_TEST_NUM", "not-a-number")
	if got := GetEnvNumeric("KIWI_TEST_NUM", 3); got != 3 {
		t.Fatalf("expected default 3, got %v", got)
	}

	if got := GetEnvInt("KIWI_TEST_MISSING", 8000); got != 8000 {
		t.Fatalf("expected default 8000, got %d", got)
	}
}

func TestGetEnvBool(t *testing.T) {
	t.Setenv("KIWI_TEST_BOOL", "true")
	if !GetEnvBool("KIWI_TEST_BOOL", false) {
		t.Fatal("expected true")
	}
	t.Setenv("KIWI_TEST_BOOL", "yes")
	if GetEnvBool("KIWI_TEST_BOOL", false) {
		t.Fatal("expected default false for unparsable value")
	}
}

func TestGetEnvDuration(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  time.Duration
	}{
		{"go duration", "5m", 5 * time.Minute},
		{"plain seconds", "30", 30 * time.Second},
		{"invalid", "soon", time.Second},
		{"empty", "", time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("KIWI_TEST_DURATION", tt.value)
			if got := GetEnvDuration("KIWI_TEST_DURATION", time.Second); got != tt.want {
				t.Fatalf("expected %v, got %v", tt.want, got)
			}
		})
	}
}
