package room

import (
	"errors"
	"time"
)

// requestBudget bounds each Spotify call issued by the room.
const requestBudget = 5 * time.Second

var (
	// ErrUnknownSession means the id doesn't refer to any live session.
	ErrUnknownSession = errors.New("unknown session")

	// ErrInvalidSession means the session carries neither a Spotify
	// identity nor a listener identity.
	ErrInvalidSession = errors.New("session has no identity")

	// ErrNotConductor rejects master commands from non-conductor seats.
	ErrNotConductor = errors.New("only the conductor can do that")

	// ErrNoConductor means no session can drive Spotify right now.
	ErrNoConductor = errors.New("no spotify account connected")

	// ErrNotAllowed rejects take_master_control from outside the allow-list.
	ErrNotAllowed = errors.New("not permitted to take master control")

	// ErrInvalidInput rejects unparseable or unsupported submissions.
	ErrInvalidInput = errors.New("invalid input")
)
