package room

import (
	"time"

	"github.com/slate-fm/maestro/models"
)

const (
	// ledgerMax is the on-disk and in-memory event retention.
	ledgerMax = 500

	// broadcastMax is how many recent events or plays go out per message.
	broadcastMax = 100

	// playsMax is the play-history retention.
	playsMax = 100
)

// Ledger is the room's append-only event history, ring-trimmed to ledgerMax.
type Ledger struct {
	events []*models.HistoryEvent
	plays  []*models.PlayHistoryEntry
}

func NewLedger() *Ledger {
	return &Ledger{}
}

// Append adds an event and trims the ring.
func (l *Ledger) Append(e *models.HistoryEvent) {
	l.events = append(l.events, e)
	if len(l.events) > ledgerMax {
		l.events = l.events[len(l.events)-ledgerMax:]
	}
}

// Events returns the full retained ledger, oldest first.
func (l *Ledger) Events() []*models.HistoryEvent {
	return l.events
}

// Recent returns the newest broadcastMax events, oldest first.
func (l *Ledger) Recent() []*models.HistoryEvent {
	if len(l.events) <= broadcastMax {
		return l.events
	}
	return l.events[len(l.events)-broadcastMax:]
}

// Restore replaces the ledger wholesale (startup load), trimming oversize
// input.
func (l *Ledger) Restore(events []*models.HistoryEvent) {
	if len(events) > ledgerMax {
		events = events[len(events)-ledgerMax:]
	}
	l.events = events
}

// RecordPlay pushes a completed play onto the play-history ring.
func (l *Ledger) RecordPlay(track *models.Track, startedBy string) {
	l.plays = append(l.plays, &models.PlayHistoryEntry{
		Timestamp: time.Now(),
		Track:     track.Clone(),
		StartedBy: startedBy,
	})
	if len(l.plays) > playsMax {
		l.plays = l.plays[len(l.plays)-playsMax:]
	}
}

// RecentPlays returns the newest broadcastMax plays, oldest first.
func (l *Ledger) RecentPlays() []*models.PlayHistoryEntry {
	if len(l.plays) <= broadcastMax {
		return l.plays
	}
	return l.plays[len(l.plays)-broadcastMax:]
}
