package uuid

import (
	"strings"
	"testing"

	goUUID "github.com/google/uuid"
)

func TestGeneratorNewID(t *testing.T) {
	t.Parallel()

	gen := New("run-")
	id1, err := gen.NewID()
	if err != nil {
		t.Fatalf("NewID() error = %v", err)
	}
	id2, err := gen.NewID()
	if err != nil {
		t.Fatalf("NewID() error = %v", err)
	}
	if id1 == id2 {
		t.Fatalf("expected unique IDs, got %s and %s", id1, id2)
	}
	if !strings.HasPrefix(id1, "run-") {
		t.Fatalf("expected run- prefix, got %s", id1)
	}
	parsed, err := goUUID.Parse(strings.TrimPrefix(id1, "run-"))
	if err != nil {
		t.Fatalf("id1 not valid UUID: %v", err)
	}
	if parsed.Version() != 7 {
		t.Fatalf("expected version 7, got %d", parsed.Version())
	}
}

func TestGeneratorWithoutPrefix(t *testing.T) {
	t.Parallel()

	id, err := New("").NewID()
	if err != nil {
		t.Fatalf("NewID() error = %v", err)
	}
	if _, err := goUUID.Parse(id); err != nil {
		t.Fatalf("expected bare UUID, got %s: %v", id, err)
	}
}
