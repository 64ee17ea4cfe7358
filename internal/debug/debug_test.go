package debug

import "testing"

func TestAssertfHoldsNoPanic(t *testing.T) {
	defer func() {
		if r := recover(); r != nil {
			t.Fatalf("Assertf(true) panicked: %v", r)
		}
	}()
	Assertf(true, "never")
}

func TestAssertfFailure(t *testing.T) {
	defer func() {
		r := recover()
		if Enabled && r == nil {
			t.Fatal("Assertf(false) did not panic with assertions enabled")
		}
		if !Enabled && r != nil {
			t.Fatalf("Assertf(false) panicked in a release build: %v", r)
		}
	}()
	Assertf(false, "value %d", 3)
}
