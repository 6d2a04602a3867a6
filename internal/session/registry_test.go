package session

import "testing"

func TestRegistryLifecycle(t *testing.T) {
	r := NewRegistry()

	if _, ok := r.Lookup("c1"); ok {
		t.Fatal("lookup before register succeeded")
	}

	r.Register("c1", "alice")
	name, ok := r.Lookup("c1")
	if !ok || name != "alice" {
		t.Fatalf("got %q/%v, want alice", name, ok)
	}

	// Re-register overwrites
	r.Register("c1", "alice2")
	if name, _ := r.Lookup("c1"); name != "alice2" {
		t.Fatalf("re-register did not overwrite, got %q", name)
	}

	r.Remove("c1")
	if _, ok := r.Lookup("c1"); ok {
		t.Fatal("lookup after remove succeeded")
	}

	// Removing an absent id is a no-op
	r.Remove("c1")
}
