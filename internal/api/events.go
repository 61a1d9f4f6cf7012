package api

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/btasdelen/arrview/pkg/visualization"
)

const (
	writeWait   = 10 * time.Second
	eventBuffer = 64
)

func (s *server) newUpgrader() *websocket.Upgrader {
	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
}

// checkOrigin applies the CORS origin list to WebSocket handshakes. Requests
// without an Origin header and same-origin requests are always allowed.
// Patterns follow the CORS middleware: "*" alone allows everything and a
// single "*" inside a pattern matches any run of characters.
func (s *server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	if u, err := url.Parse(origin); err == nil && strings.EqualFold(u.Host, r.Host) {
		return true
	}
	origin = strings.ToLower(origin)
	for _, allowed := range s.cfg.CORSOrigins {
		allowed = strings.ToLower(strings.TrimSpace(allowed))
		if allowed == "*" || allowed == origin {
			return true
		}
		if prefix, suffix, ok := strings.Cut(allowed, "*"); ok &&
			len(origin) >= len(prefix)+len(suffix) &&
			strings.HasPrefix(origin, prefix) && strings.HasSuffix(origin, suffix) {
			return true
		}
	}
	return false
}

// events streams the session's change notifications as JSON text messages
// until the client goes away or the session closes. Events are dropped for a
// client that does not keep up.
func (s *server) events(w http.ResponseWriter, r *http.Request) {
	v := viewerFrom(r)
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Str("origin", r.Header.Get("Origin")).Msg("websocket upgrade failed")
		return
	}
	defer ws.Close()

	ch := make(chan visualization.Event, eventBuffer)
	unsubscribe := v.Subscribe(func(ev visualization.Event) {
		select {
		case ch <- ev:
		default:
		}
	})
	defer unsubscribe()

	// Reads only detect the client closing the connection.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()

	s.log.Debug().Str("viewer", v.ID()).Msg("event stream opened")
	for {
		select {
		case <-gone:
			return
		case <-r.Context().Done():
			return
		case ev := <-ch:
			ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteJSON(ev); err != nil {
				s.log.Debug().Err(err).Msg("event stream write failed")
				return
			}
			if ev.Kind == visualization.Closed {
				ws.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session closed"))
				return
			}
		}
	}
}
