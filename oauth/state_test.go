package oauth

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestStateSignerRoundTrip(t *testing.T) {
	signer, err := NewStateSigner(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	state, err := signer.Sign("session-123")
	if err != nil {
		t.Fatal(err)
	}

	sid, err := signer.Verify(state)
	if err != nil {
		t.Fatal(err)
	}
	if sid != "session-123" {
		t.Errorf("session id: got %q, want session-123", sid)
	}
}

func TestStateSignerRejectsTampering(t *testing.T) {
	signer, err := NewStateSigner(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	state, err := signer.Sign("session-123")
	if err != nil {
		t.Fatal(err)
	}

	// Flip a character in the payload segment.
	parts := strings.Split(state, ".")
	if len(parts) != 3 {
		t.Fatalf("expected a compact JWS, got %d segments", len(parts))
	}
	payload := []byte(parts[1])
	payload[len(payload)/2] ^= 1
	parts[1] = string(payload)

	if _, err := signer.Verify(strings.Join(parts, ".")); err == nil {
		t.Error("tampered state should not verify")
	}

	if _, err := signer.Verify("not-a-token"); err == nil {
		t.Error("garbage state should not verify")
	}
}

func TestStateSignerRejectsForeignKey(t *testing.T) {
	ours, err := NewStateSigner(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	theirs, err := NewStateSigner(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	state, err := theirs.Sign("session-123")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := ours.Verify(state); err == nil {
		t.Error("state signed by a different key should not verify")
	}
}

func TestStateSignerKeyPersists(t *testing.T) {
	dir := t.TempDir()

	first, err := NewStateSigner(dir)
	if err != nil {
		t.Fatal(err)
	}
	state, err := first.Sign("session-123")
	if err != nil {
		t.Fatal(err)
	}

	if _, err := os.Stat(filepath.Join(dir, "state.jwk.json")); err != nil {
		t.Fatalf("signing key not persisted: %v", err)
	}

	// A signer rebuilt from the same directory verifies earlier states.
	second, err := NewStateSigner(dir)
	if err != nil {
		t.Fatal(err)
	}
	sid, err := second.Verify(state)
	if err != nil {
		t.Fatal(err)
	}
	if sid != "session-123" {
		t.Errorf("session id after reload: got %q", sid)
	}
}
