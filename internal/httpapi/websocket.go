package httpapi

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/servilista/servilista/pkg/market"
	mw "github.com/servilista/servilista/middleware/http"
)

const (
	wsWriteTimeout = 10 * time.Second
	wsPingInterval = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// Token auth happens before the upgrade; cross-origin browser clients
	// are expected.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// WatchServices upgrades the connection and pushes the caller's full
// listing set on every change. Closing the socket, from either side,
// stops the underlying live query.
func (h *Handler) WatchServices(w http.ResponseWriter, r *http.Request) {
	user, _ := mw.UserFromContext(r.Context())

	watcher, err := h.config.Catalog.Watch(r.Context(), user)
	if err != nil {
		h.writeError(w, err)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		watcher.Stop()
		return
	}
	defer conn.Close()
	defer watcher.Stop()

	// Read pump: discard client frames, surface the close.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(wsPingInterval)
	defer ping.Stop()

	for {
		select {
		case <-closed:
			return
		case <-r.Context().Done():
			return
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case listings, ok := <-watcher.Updates():
			if !ok {
				_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
				_ = conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "watch ended"))
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteJSON(toListingResponses(listings)); err != nil {
				h.config.Logger.Debug("watch push failed, closing",
					market.Err(err))
				return
			}
		}
	}
}
