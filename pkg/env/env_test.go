package env

import "testing"

func TestFirstSkipsBlankValues(t *testing.T) {
	t.Setenv("MEDSTOCK_TEST_A", "  ")
	t.Setenv("MEDSTOCK_TEST_B", "b")
	if got := First("MEDSTOCK_TEST_MISSING", "MEDSTOCK_TEST_A", "MEDSTOCK_TEST_B"); got != "b" {
		t.Fatalf("expected b, got %q", got)
	}
	if got := Get("MEDSTOCK_TEST_A", "fallback"); got != "fallback" {
		t.Fatalf("expected fallback, got %q", got)
	}
}
