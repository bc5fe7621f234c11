package httptransport

import (
	"context"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	request "claimguard/pkg/platform/middleware/request"
)

// writeTimeout bounds a single snapshot write to a websocket client.
const writeTimeout = 5 * time.Second

// handleStream pushes a session snapshot every time the session changes. The
// connection closes with a normal status once the session is terminal.
func (h *Handler) handleStream(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := request.GetRequestID(ctx)

	snapshots, cancel, err := h.svc.Subscribe(ctx, sessionIDParam(r), h.streamBuffer)
	if err != nil {
		h.fail(ctx, w, "failed to subscribe to session", err)
		return
	}
	defer cancel()

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		h.logger.WarnContext(ctx, "websocket accept failed",
			"request_id", requestID,
			"error", err,
		)
		return
	}
	defer conn.CloseNow()

	// Clients never send anything; CloseRead handles their close frames and
	// cancels ctx when they disconnect.
	ctx = conn.CloseRead(ctx)

	ticker := time.NewTicker(h.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := ping(ctx, conn); err != nil {
				h.logger.DebugContext(ctx, "websocket ping failed", "request_id", requestID, "error", err)
				return
			}
		case snap, ok := <-snapshots:
			if !ok {
				_ = conn.Close(websocket.StatusNormalClosure, "session finished")
				return
			}
			if err := write(ctx, conn, snap); err != nil {
				h.logger.DebugContext(ctx, "websocket write failed", "request_id", requestID, "error", err)
				return
			}
			if snap.Status.IsTerminal() {
				_ = conn.Close(websocket.StatusNormalClosure, "session "+string(snap.Status))
				return
			}
		}
	}
}

func write(ctx context.Context, conn *websocket.Conn, v any) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return wsjson.Write(ctx, conn, v)
}

func ping(ctx context.Context, conn *websocket.Conn) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return conn.Ping(ctx)
}
