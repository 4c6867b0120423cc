package queue

import (
	"errors"
	"testing"
	"time"

	"github.com/slate-fm/maestro/models"
)

func testTrack(uri, email string) *models.Track {
	return &models.Track{
		URI:            uri,
		Name:           "Track " + uri,
		Artist:         "Artist",
		SubmitterEmail: email,
		SubmitterName:  email,
		SubmittedAt:    time.Now(),
		DurationMs:     200000,
	}
}

func uris(tracks []*models.Track) []string {
	out := make([]string, len(tracks))
	for i, t := range tracks {
		out[i] = t.URI
	}
	return out
}

func assertOrder(t *testing.T, got []*models.Track, want []string) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("queue length: got %d (%v), want %d (%v)", len(got), uris(got), len(want), want)
	}
	for i := range want {
		if got[i].URI != want[i] {
			t.Errorf("position %d: got %s, want %s (full: %v)", i, got[i].URI, want[i], uris(got))
		}
	}
}

func TestFairInsertion(t *testing.T) {
	t.Run("third user's tracks interleave round by round", func(t *testing.T) {
		q := New()
		// Alice and Bob alternate: A1 B1 A2 B2 A3
		for _, tr := range []struct{ uri, email string }{
			{"A1", "alice@x.com"}, {"B1", "bob@x.com"},
			{"A2", "alice@x.com"}, {"B2", "bob@x.com"},
			{"A3", "alice@x.com"},
		} {
			if err := q.Add(testTrack(tr.uri, tr.email)); err != nil {
				t.Fatalf("add %s: %v", tr.uri, err)
			}
		}

		// Carol's first track joins the first round.
		if err := q.Add(testTrack("C1", "carol@x.com")); err != nil {
			t.Fatal(err)
		}
		assertOrder(t, q.UserTracks(), []string{"A1", "B1", "C1", "A2", "B2", "A3"})

		// Her second joins the second round.
		if err := q.Add(testTrack("C2", "carol@x.com")); err != nil {
			t.Fatal(err)
		}
		assertOrder(t, q.UserTracks(), []string{"A1", "B1", "C1", "A2", "B2", "C2", "A3"})
	})

	t.Run("newcomer's first track lands after the heavy submitter's first", func(t *testing.T) {
		q := New()
		for _, uri := range []string{"A1", "A2", "A3", "A4", "A5"} {
			if err := q.Add(testTrack(uri, "alice@x.com")); err != nil {
				t.Fatal(err)
			}
		}

		if err := q.Add(testTrack("F1", "frank@x.com")); err != nil {
			t.Fatal(err)
		}
		assertOrder(t, q.UserTracks(), []string{"A1", "F1", "A2", "A3", "A4", "A5"})
	})

	t.Run("own tracks never reorder", func(t *testing.T) {
		q := New()
		for _, uri := range []string{"A1", "A2", "A3"} {
			if err := q.Add(testTrack(uri, "alice@x.com")); err != nil {
				t.Fatal(err)
			}
		}
		assertOrder(t, q.UserTracks(), []string{"A1", "A2", "A3"})
	})

	t.Run("no submitter email appends to the end", func(t *testing.T) {
		q := New()
		if err := q.Add(testTrack("A1", "alice@x.com")); err != nil {
			t.Fatal(err)
		}
		if err := q.Add(testTrack("X1", "")); err != nil {
			t.Fatal(err)
		}
		if err := q.Add(testTrack("A2", "alice@x.com")); err != nil {
			t.Fatal(err)
		}
		assertOrder(t, q.UserTracks(), []string{"A1", "X1", "A2"})
	})
}

func TestAddDuplicate(t *testing.T) {
	q := New()
	if err := q.Add(testTrack("A1", "alice@x.com")); err != nil {
		t.Fatal(err)
	}
	err := q.Add(testTrack("A1", "bob@x.com"))
	if !errors.Is(err, ErrDuplicate) {
		t.Errorf("got %v, want ErrDuplicate", err)
	}
	if q.Len() != 1 {
		t.Errorf("queue length changed on duplicate: %d", q.Len())
	}
}

func TestAddSupersedesFallbackEntry(t *testing.T) {
	q := New()
	q.SetFallback([]*models.Track{testTrack("K1", ""), testTrack("F2", "")}, "Chill Mix")

	if err := q.Add(testTrack("K1", "alice@x.com")); err != nil {
		t.Fatal(err)
	}

	if q.FindFallback("K1") != nil {
		t.Error("submitted track should leave the fallback tier")
	}
	if q.FindUser("K1") == nil {
		t.Fatal("submitted track missing from user tier")
	}

	seen := 0
	for _, d := range q.Display() {
		if d.URI == "K1" {
			seen++
		}
	}
	if seen != 1 {
		t.Errorf("display entries for K1: got %d, want 1", seen)
	}
}

func TestDelayOne(t *testing.T) {
	q := New()
	for _, tr := range []struct{ uri, email string }{
		{"A1", "alice@x.com"}, {"B1", "bob@x.com"}, {"C1", "carol@x.com"},
	} {
		if err := q.Add(testTrack(tr.uri, tr.email)); err != nil {
			t.Fatal(err)
		}
	}

	if !q.DelayOne("A1") {
		t.Error("expected delay of head to succeed")
	}
	assertOrder(t, q.UserTracks(), []string{"B1", "A1", "C1"})

	if q.DelayOne("C1") {
		t.Error("delaying the tail should be a no-op")
	}
	assertOrder(t, q.UserTracks(), []string{"B1", "A1", "C1"})

	if q.DelayOne("nope") {
		t.Error("unknown uri should be a no-op")
	}
}

func TestPeekConsume(t *testing.T) {
	t.Run("peek is stable and does not remove", func(t *testing.T) {
		q := New()
		if err := q.Add(testTrack("A1", "alice@x.com")); err != nil {
			t.Fatal(err)
		}

		first, isFallback := q.PeekNext()
		second, _ := q.PeekNext()
		if first != second {
			t.Error("two peeks with no mutation returned different tracks")
		}
		if isFallback {
			t.Error("user track reported as fallback")
		}
		if q.Len() != 1 {
			t.Error("peek removed the track")
		}

		consumed := q.ConsumeNext(false)
		if consumed != first {
			t.Error("consume returned a different track than peek")
		}
		if q.Len() != 0 {
			t.Error("consume did not remove the track")
		}
	})

	t.Run("user tier always wins over fallback", func(t *testing.T) {
		q := New()
		q.SetFallback([]*models.Track{testTrack("F1", "")}, "Chill Mix")
		if err := q.Add(testTrack("A1", "alice@x.com")); err != nil {
			t.Fatal(err)
		}

		next, isFallback := q.PeekNext()
		if next.URI != "A1" || isFallback {
			t.Errorf("got %s (fallback=%v), want A1 from user tier", next.URI, isFallback)
		}
	})

	t.Run("empty tiers peek nil", func(t *testing.T) {
		q := New()
		if next, _ := q.PeekNext(); next != nil {
			t.Errorf("got %v, want nil", next)
		}
		if q.ConsumeNext(false) != nil {
			t.Error("consume on empty queue should return nil")
		}
	})
}

func TestSetFallback(t *testing.T) {
	q := New()
	tracks := []*models.Track{
		testTrack("F1", ""), testTrack("F2", ""), testTrack("F3", ""),
	}
	q.SetFallback(tracks, "Chill Mix")

	if q.FallbackLen() != 3 {
		t.Fatalf("fallback length: got %d, want 3", q.FallbackLen())
	}
	for _, uri := range []string{"F1", "F2", "F3"} {
		ft := q.FindFallback(uri)
		if ft == nil {
			t.Fatalf("track %s missing after shuffle", uri)
		}
		if ft.SubmitterEmail != models.FallbackEmail {
			t.Errorf("fallback submitter: got %s, want %s", ft.SubmitterEmail, models.FallbackEmail)
		}
		if ft.PlaylistName != "Chill Mix" {
			t.Errorf("playlist name: got %s, want Chill Mix", ft.PlaylistName)
		}
	}
}

func TestPromote(t *testing.T) {
	t.Run("jammed fallback becomes the jammer's submission", func(t *testing.T) {
		q := New()
		q.SetFallback([]*models.Track{testTrack("F1", "")}, "Chill Mix")

		promoted, err := q.Promote("F1", "carol@x.com", "Carol")
		if err != nil {
			t.Fatal(err)
		}
		if promoted.SubmitterEmail != "carol@x.com" || promoted.SubmitterName != "Carol" {
			t.Errorf("promoted submitter: got %s/%s", promoted.SubmitterEmail, promoted.SubmitterName)
		}
		if promoted.JamCounts["carol@x.com"] != 1 {
			t.Errorf("promoted jam count: got %d, want 1", promoted.JamCounts["carol@x.com"])
		}
		if q.FallbackLen() != 0 {
			t.Error("promoted track still in fallback tier")
		}
		if q.FindUser("F1") == nil {
			t.Error("promoted track not in user tier")
		}
	})

	t.Run("unknown uri fails", func(t *testing.T) {
		q := New()
		if _, err := q.Promote("nope", "carol@x.com", "Carol"); err == nil {
			t.Error("expected error for unknown fallback uri")
		}
	})

	t.Run("duplicate in user queue restores the fallback entry", func(t *testing.T) {
		q := New()
		if err := q.Add(testTrack("F1", "alice@x.com")); err != nil {
			t.Fatal(err)
		}
		q.SetFallback([]*models.Track{testTrack("F1", "")}, "Chill Mix")

		if _, err := q.Promote("F1", "carol@x.com", "Carol"); err == nil {
			t.Error("expected duplicate promotion to fail")
		}
		if q.FallbackLen() != 1 {
			t.Error("fallback entry lost after failed promotion")
		}
	})
}

func TestDisplay(t *testing.T) {
	t.Run("pads with fallback up to the limit", func(t *testing.T) {
		q := New()
		var fallback []*models.Track
		for _, uri := range []string{"F1", "F2", "F3", "F4", "F5", "F6", "F7", "F8", "F9", "F10", "F11", "F12"} {
			fallback = append(fallback, testTrack(uri, ""))
		}
		q.SetFallback(fallback, "Chill Mix")
		if err := q.Add(testTrack("A1", "alice@x.com")); err != nil {
			t.Fatal(err)
		}

		display := q.Display()
		if len(display) != DisplayLimit {
			t.Fatalf("display length: got %d, want %d", len(display), DisplayLimit)
		}
		if display[0].URI != "A1" || display[0].IsFallback {
			t.Error("user track should lead the display untagged")
		}
		for _, d := range display[1:] {
			if !d.IsFallback {
				t.Errorf("fallback entry %s not tagged", d.URI)
			}
		}
	})

	t.Run("long user queue shown in full", func(t *testing.T) {
		q := New()
		for i := 0; i < 15; i++ {
			if err := q.Add(testTrack(string(rune('a'+i)), "alice@x.com")); err != nil {
				t.Fatal(err)
			}
		}
		q.SetFallback([]*models.Track{testTrack("F1", "")}, "Chill Mix")

		if got := len(q.Display()); got != 15 {
			t.Errorf("display length: got %d, want all 15 user tracks", got)
		}
	})
}
