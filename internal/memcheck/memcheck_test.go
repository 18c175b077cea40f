package memcheck

import "testing"

func TestStaticCheckerReportsFixedValue(t *testing.T) {
	c := StaticChecker(42)
	if c.UsedBytes() != 42 {
		t.Fatalf("expected 42, got %d", c.UsedBytes())
	}
}

func TestRuntimeCheckerReportsNonZero(t *testing.T) {
	c := NewRuntimeChecker()
	if c.UsedBytes() == 0 {
		t.Fatalf("expected a running process to report nonzero heap usage")
	}
}
