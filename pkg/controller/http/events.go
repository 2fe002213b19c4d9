package http

import (
	"context"
	"net/http"
	"time"

	"github.com/secmon-lab/bulkdm/pkg/domain/model"
	"github.com/secmon-lab/bulkdm/pkg/utils/logging"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

const (
	eventRosterUpdated = "roster_updated"
	eventWriteTimeout  = 5 * time.Second
	// eventBuffer drops updates for clients that stop reading
	eventBuffer = 4
)

type rosterEvent struct {
	Type    string              `json:"type"`
	Users   []model.RosterEntry `json:"users"`
	CSVPath string              `json:"csvPath"`
}

// rosterEvents streams a roster_updated message after each successful sync
// until the client disconnects
func (s *Server) rosterEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: s.origins,
	})
	if err != nil {
		logging.From(r.Context()).Warn("websocket upgrade failed", "error", err.Error())
		return
	}
	defer conn.CloseNow() //nolint:errcheck

	// the client never sends; CloseRead cancels ctx when it goes away
	ctx := conn.CloseRead(r.Context())

	updates := make(chan model.Roster, eventBuffer)
	unsubscribe := s.roster.Subscribe(func(_ context.Context, roster model.Roster) {
		select {
		case updates <- roster:
		default:
			logging.Default().Warn("dropping roster event for slow websocket client")
		}
	})
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return
		case roster := <-updates:
			writeCtx, cancel := context.WithTimeout(ctx, eventWriteTimeout)
			err := wsjson.Write(writeCtx, conn, rosterEvent{
				Type:    eventRosterUpdated,
				Users:   roster.Entries,
				CSVPath: roster.CSVPath,
			})
			cancel()
			if err != nil {
				logging.From(ctx).Debug("websocket write failed", "error", err.Error())
				return
			}
		}
	}
}
