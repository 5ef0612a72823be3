package execcounter

import (
	"testing"

	"github.com/abhi-agg/glean-go/internal/store"
)

func TestStoreBackedGetOrInitAndIncrement(t *testing.T) {
	d := NewStoreBacked(store.NewMemStore())

	if v, ok := d.Get("aPing"); ok || v != 0 {
		t.Fatalf("expected unset, got (%d, %v)", v, ok)
	}

	if v := d.GetOrInit("aPing"); v != 1 {
		t.Fatalf("got %d, want 1", v)
	}
	// Calling again must not advance it.
	if v := d.GetOrInit("aPing"); v != 1 {
		t.Fatalf("got %d, want 1 (GetOrInit must be idempotent)", v)
	}

	if v := d.Increment("aPing"); v != 2 {
		t.Fatalf("got %d, want 2", v)
	}

	d.Clear("aPing")
	if _, ok := d.Get("aPing"); ok {
		t.Fatal("expected unset after clear")
	}
}

func TestStoreBackedPerPingIsolation(t *testing.T) {
	d := NewStoreBacked(store.NewMemStore())
	d.GetOrInit("a")
	d.Increment("b")

	va, _ := d.Get("a")
	vb, _ := d.Get("b")
	if va != 1 || vb != 1 {
		t.Fatalf("got a=%d b=%d, want both 1", va, vb)
	}
}
