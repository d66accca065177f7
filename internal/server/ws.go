package server

import (
	"context"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"

	"github.com/context-assistant/three.js/internal/logging"
)

const writeTimeout = 5 * time.Second

// events streams session events to one WebSocket client until either side
// closes. Client messages are ignored.
func (s *Server) events(w http.ResponseWriter, r *http.Request) {
	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"localhost:*", "127.0.0.1:*"},
	})
	if err != nil {
		logging.ServerDebug("websocket accept failed: %v", err)
		return
	}
	clientID := uuid.NewString()
	logging.Server("event client %s connected from %s", clientID, r.RemoteAddr)
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "stream ended"); closeErr != nil {
			logging.ServerDebug("failed to close websocket %s: %v", clientID, closeErr)
		}
	}()

	// CloseRead cancels ctx once the client goes away.
	ctx := ws.CloseRead(r.Context())
	ch, subID := s.session.Events().Subscribe(ctx)
	defer s.session.Events().Unsubscribe(subID)

	for {
		select {
		case <-ctx.Done():
			logging.ServerDebug("event client %s gone: %v", clientID, ctx.Err())
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			wctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := wsjson.Write(wctx, ws, ev)
			cancel()
			if err != nil {
				logging.ServerDebug("event write to %s failed: %v", clientID, err)
				return
			}
		}
	}
}
