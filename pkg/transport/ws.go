// Package transport binds engine.Session to real clients over a
// bidirectional WebSocket channel (§6's client channel), grounded on the
// same github.com/coder/websocket library the teacher dials outbound to
// its TTS backend in pkg/providers/tts/lokutor.go, used here for inbound
// Accept instead (C8).
package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/lokutor-ai/streamengine/pkg/engine"
)

// readLimit bounds a single inbound WebSocket message (container/PCM audio
// frames); generous enough for a multi-second chunk without letting a
// misbehaving client exhaust memory.
const readLimit = 8 << 20

// configMessage is the single outbound message sent before any Frame, per
// §6's "at most one initial configuration message".
type configMessage struct {
	Type            string `json:"type"`
	UseAudioWorklet bool   `json:"useAudioWorklet"`
}

// readyToStopMessage is the terminal outbound message (§6, §4.7).
type readyToStopMessage struct {
	Type string `json:"type"`
}

// SessionFactory builds a fresh *engine.Session for one accepted
// connection. The host owns model/capability construction; this package
// only owns the wire protocol.
type SessionFactory func(r *http.Request) (*engine.Session, error)

// Host is the WebSocket binding (C8): it accepts connections, drives one
// engine.Session per connection end to end, and streams Frames back as
// JSON, mirroring the accept-loop-per-connection shape of an HTTP server
// mux handler.
type Host struct {
	NewSession      SessionFactory
	UseAudioWorklet bool
	Logger          engine.Logger
}

// NewHost builds a Host. logger may be nil.
func NewHost(factory SessionFactory, logger engine.Logger) *Host {
	if logger == nil {
		logger = &engine.NoOpLogger{}
	}
	return &Host{NewSession: factory, Logger: logger}
}

// ServeHTTP upgrades the request to a WebSocket connection and drives one
// session to completion. It never returns until the connection closes.
func (h *Host) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		h.Logger.Error("websocket accept failed", "error", err)
		return
	}
	conn.SetReadLimit(readLimit)
	defer conn.Close(websocket.StatusInternalError, "session ended")

	session, err := h.NewSession(r)
	if err != nil {
		// model_load_failure (§7): session refused, client gets an error
		// frame and the channel closes.
		h.writeJSON(r.Context(), conn, engine.Frame{Status: engine.StatusError, Error: fmt.Sprintf("model load failure: %v", err)})
		conn.Close(websocket.StatusNormalClosure, "model load failure")
		return
	}

	ctx := r.Context()
	frames, err := session.Start(ctx)
	if err != nil {
		h.writeJSON(ctx, conn, engine.Frame{Status: engine.StatusError, Error: fmt.Sprintf("decoder error: %v", err)})
		conn.Close(websocket.StatusNormalClosure, "decoder error")
		return
	}

	if err := h.writeJSON(ctx, conn, configMessage{Type: "config", UseAudioWorklet: h.UseAudioWorklet}); err != nil {
		session.Stop()
		return
	}

	sessCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go h.readLoop(sessCtx, conn, session)

	for frame := range frames {
		if err := h.writeJSON(ctx, conn, frame); err != nil {
			session.Stop()
			return
		}
	}

	h.writeJSON(ctx, conn, readyToStopMessage{Type: "ready_to_stop"})
	conn.Close(websocket.StatusNormalClosure, "")
}

// readLoop is the sole reader of the client connection (§5's "each pipe
// end owned by exactly one goroutine"): binary frames are forwarded to the
// decoder, a zero-length message begins Draining (§6), and any read error
// is treated as client_disconnect (§7).
func (h *Host) readLoop(ctx context.Context, conn *websocket.Conn, session *engine.Session) {
	for {
		msgType, payload, err := conn.Read(ctx)
		if err != nil {
			if !errors.Is(err, context.Canceled) {
				h.Logger.Info("client read ended", "error", err)
			}
			session.Stop()
			return
		}

		if msgType != websocket.MessageBinary {
			continue
		}

		if len(payload) == 0 {
			session.EndStream()
			return
		}

		if !session.PushAudio(payload) {
			h.Logger.Warn("dropped inbound audio, decoder not accepting writes")
		}
	}
}

func (h *Host) writeJSON(ctx context.Context, conn *websocket.Conn, v interface{}) error {
	writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return wsjson.Write(writeCtx, conn, v)
}
