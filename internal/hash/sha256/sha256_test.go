// Package sha256 includes tests for the SHA-256 hasher adapter.
package sha256

import "testing"

// TestHasherHashDeterministic ensures repeated hashing yields the same digest.
func TestHasherHashDeterministic(t *testing.T) {
	t.Parallel()

	h := New()
	got, err := h.Hash([]byte("<html>catalog</html>"))
	if err != nil {
		t.Fatalf("Hash() error = %v", err)
	}
	if len(got) != 64 {
		t.Fatalf("expected a full 64-char digest, got %q", got)
	}
	again, err := h.Hash([]byte("<html>catalog</html>"))
	if err != nil {
		t.Fatalf("Hash() repeat error = %v", err)
	}
	if again != got {
		t.Fatalf("expected deterministic hash, got %s vs %s", got, again)
	}
}

func TestHasherKnownDigestAndTruncation(t *testing.T) {
	t.Parallel()

	want := "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9"
	got, _ := New().Hash([]byte("hello world"))
	if got != want {
		t.Fatalf("expected %s, got %s", want, got)
	}

	short, _ := (&Hasher{Length: 12}).Hash([]byte("hello world"))
	if short != want[:12] {
		t.Fatalf("expected truncated %s, got %s", want[:12], short)
	}
}
