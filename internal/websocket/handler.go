package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/dukerupert/pantry/internal/auth"

	ws "github.com/coder/websocket"
)

// SnapshotFunc returns the current state sent to a client before live events.
type SnapshotFunc func(ctx context.Context, tenantID string) (any, error)

// HandleWebSocket upgrades authenticated requests and streams the caller's
// tenant feed, starting with a snapshot message.
func HandleWebSocket(hub *Hub, snapshot SnapshotFunc, originPatterns []string, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID := auth.TenantID(r.Context())
		if tenantID == "" {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		conn, err := ws.Accept(w, r, &ws.AcceptOptions{
			OriginPatterns: originPatterns,
		})
		if err != nil {
			logger.Warn("websocket accept", "error", err)
			return
		}
		defer conn.CloseNow()

		// Subscribe before reading the snapshot so no change falls between them.
		sub := hub.Subscribe(tenantID)

		var first []byte
		if snapshot != nil {
			state, err := snapshot(r.Context(), tenantID)
			if err != nil {
				sub.Unsubscribe()
				logger.Error("websocket snapshot", "tenant", tenantID, "error", err)
				conn.Close(ws.StatusInternalError, "snapshot failed")
				return
			}
			first, err = json.Marshal(NewMessage("inventory", "snapshot", 0, state))
			if err != nil {
				sub.Unsubscribe()
				logger.Error("marshal snapshot", "error", err)
				conn.Close(ws.StatusInternalError, "snapshot failed")
				return
			}
		}

		NewClient(sub, conn).Run(r.Context(), first)
	}
}
