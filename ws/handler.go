package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/slate-fm/maestro/models"
)

// loginWait bounds how long a fresh connection gets to present its login
// frame before being dropped.
const loginWait = 10 * time.Second

// Coordinator is the slice of the room the transport edge drives.
type Coordinator interface {
	AttachTransport(sessionID string, conn models.Transport) error
	DetachTransport(sessionID string, conn models.Transport)
	NotifySession(sessionID, text string)

	SubmitTrack(ctx context.Context, sessionID, input string) error
	RemoveTrack(sessionID, uri string) error
	DelayTrack(sessionID, uri string) error
	Jam(sessionID, uri string, unjam bool) error

	MasterPlay(ctx context.Context, sessionID string) error
	MasterPause(ctx context.Context, sessionID string) error
	MasterSkip(ctx context.Context, sessionID string) error
	StartFallback(ctx context.Context, sessionID string) error
	TakeMasterControl(ctx context.Context, sessionID string) error

	SessionPlay(ctx context.Context, sessionID string) error
	SessionPause(ctx context.Context, sessionID string) error

	Airhorn(sessionID, sound string) error
	HistoryMessage(sessionID, text string) error

	Ping(sessionID string)
	Resync(sessionID string)
	SendTracks(sessionID string)
	SendSessions(sessionID string)
	SendPlayHistory(sessionID string)
}

// frame is the envelope for every inbound message.
type frame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type loginData struct {
	SessionID string `json:"sessionId"`
}

type uriData struct {
	URI string `json:"uri"`
}

type jamData struct {
	URI   string `json:"uri"`
	Unjam bool   `json:"unjam"`
}

type submitData struct {
	Input string `json:"input"`
}

type airhornData struct {
	Sound string `json:"sound"`
}

type messageData struct {
	Message string `json:"message"`
}

// Handler upgrades /ws connections and runs their read loops.
type Handler struct {
	room     Coordinator
	upgrader websocket.Upgrader
}

func NewHandler(room Coordinator) *Handler {
	return &Handler{
		room: room,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The session id in the login frame is the credential;
			// cross-origin pages can't know it.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}

	c := newClient(conn)
	go c.writePump()

	sessionID, ok := h.awaitLogin(c)
	if !ok {
		c.Close()
		return
	}

	if err := h.room.AttachTransport(sessionID, c); err != nil {
		c.Send(models.Message{
			Type: models.MsgLoginError,
			Data: map[string]string{"message": "Unknown or incomplete session. Log in again."},
		})
		// Give the writer a beat to flush the error frame.
		time.Sleep(100 * time.Millisecond)
		c.Close()
		return
	}

	h.readPump(c, sessionID)
}

// awaitLogin reads the mandatory first frame: a login carrying the session id.
func (h *Handler) awaitLogin(c *client) (string, bool) {
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(loginWait))

	var f frame
	if err := c.conn.ReadJSON(&f); err != nil {
		return "", false
	}
	if f.Type != "login" {
		return "", false
	}

	var d loginData
	if err := json.Unmarshal(f.Data, &d); err != nil || d.SessionID == "" {
		return "", false
	}
	return d.SessionID, true
}

// readPump consumes frames until the connection dies, dispatching each onto
// the room. Errors from room operations go back to the caller as a prominent
// message rather than killing the connection.
func (h *Handler) readPump(c *client, sessionID string) {
	defer func() {
		h.room.DetachTransport(sessionID, c)
		c.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var f frame
		if err := c.conn.ReadJSON(&f); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug().Err(err).Str("session", sessionID).Msg("websocket closed")
			}
			return
		}
		c.conn.SetReadDeadline(time.Now().Add(pongWait))

		if err := h.dispatch(c, sessionID, f); err != nil {
			h.room.NotifySession(sessionID, err.Error())
		}
	}
}

func (h *Handler) dispatch(c *client, sessionID string, f frame) error {
	ctx := context.Background()

	switch f.Type {
	case "ping":
		h.room.Ping(sessionID)
		return nil

	case "submit_track":
		var d submitData
		if err := json.Unmarshal(f.Data, &d); err != nil {
			return err
		}
		return h.room.SubmitTrack(ctx, sessionID, d.Input)

	case "remove_track":
		var d uriData
		if err := json.Unmarshal(f.Data, &d); err != nil {
			return err
		}
		return h.room.RemoveTrack(sessionID, d.URI)

	case "delay_track":
		var d uriData
		if err := json.Unmarshal(f.Data, &d); err != nil {
			return err
		}
		return h.room.DelayTrack(sessionID, d.URI)

	case "jam":
		var d jamData
		if err := json.Unmarshal(f.Data, &d); err != nil {
			return err
		}
		return h.room.Jam(sessionID, d.URI, d.Unjam)

	case "master_play":
		return h.room.MasterPlay(ctx, sessionID)
	case "master_pause":
		return h.room.MasterPause(ctx, sessionID)
	case "master_skip":
		return h.room.MasterSkip(ctx, sessionID)
	case "start_fallback":
		return h.room.StartFallback(ctx, sessionID)
	case "take_master_control":
		return h.room.TakeMasterControl(ctx, sessionID)

	case "session_play":
		return h.room.SessionPlay(ctx, sessionID)
	case "session_pause":
		return h.room.SessionPause(ctx, sessionID)

	case "airhorn":
		var d airhornData
		if err := json.Unmarshal(f.Data, &d); err != nil {
			return err
		}
		if !models.ValidAirhorn(d.Sound) {
			d.Sound = models.AirhornSounds[0]
		}
		return h.room.Airhorn(sessionID, d.Sound)

	case "message", "history_message":
		var d messageData
		if err := json.Unmarshal(f.Data, &d); err != nil {
			return err
		}
		return h.room.HistoryMessage(sessionID, d.Message)

	case "get_tracks":
		h.room.SendTracks(sessionID)
		return nil
	case "get_sessions":
		h.room.SendSessions(sessionID)
		return nil
	case "get_play_history":
		h.room.SendPlayHistory(sessionID)
		return nil

	case "resync":
		h.room.Resync(sessionID)
		return nil

	default:
		log.Debug().Str("type", f.Type).Msg("unknown inbound message kind")
		return nil
	}
}
