package vecutil

import "testing"

func TestSafeNormalizeHandlesZeroVector(t *testing.T) {
	z := SafeNormalize(Zero())
	if z != (Vec3{}) {
		t.Fatalf("expected zero vector, got %v", z)
	}
}

func TestSafeNormalizeUnitLength(t *testing.T) {
	v := SafeNormalize(New(3, 4, 0))
	if l := v.Len(); l < 0.999 || l > 1.001 {
		t.Fatalf("expected unit length, got %v", l)
	}
}
