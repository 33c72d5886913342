package testfixtures

import (
	"testing"

	"github.com/google/uuid"
)

func TestIDGeneratorProducesDeterministicUUIDs(t *testing.T) {
	gen := NewIDGenerator("booking")

	first := gen.Next()
	second := gen.Next()

	if first != IDFor("booking", 1) || second != IDFor("booking", 2) {
		t.Fatalf("unexpected identifiers: %q, %q", first, second)
	}
	if first == second {
		t.Fatal("expected distinct identifiers")
	}
	if _, err := uuid.Parse(first); err != nil {
		t.Fatalf("expected a UUID, got %q: %v", first, err)
	}
}

func TestIDGeneratorReset(t *testing.T) {
	gen := NewIDGenerator("room")
	first := gen.Next()
	gen.Reset()

	if next := gen.Next(); next != first {
		t.Fatalf("expected %q after reset, got %q", first, next)
	}
}
