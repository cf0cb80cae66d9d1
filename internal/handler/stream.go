package handler

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/web3-frozen/ultrasound-monitor/internal/monitor"
)

const streamWriteTimeout = 5 * time.Second

// SupplyStream pushes the throttled supply projection over a websocket each
// time it is recomputed. The current value, if any, is sent on connect.
func SupplyStream(engine *monitor.Engine, frontendOrigin string, logger *slog.Logger) http.HandlerFunc {
	opts := streamAcceptOptions(frontendOrigin)

	return func(w http.ResponseWriter, r *http.Request) {
		// The connection outlives the server's write timeout.
		_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

		conn, err := websocket.Accept(w, r, opts)
		if err != nil {
			logger.Warn("websocket accept failed", "error", err)
			return
		}
		defer conn.CloseNow() //nolint:errcheck

		ctx := conn.CloseRead(r.Context())
		ticker := time.NewTicker(engine.PollInterval())
		defer ticker.Stop()

		var last time.Time
		for {
			if p, ok := engine.Projection(); ok && !p.ComputedAt.Equal(last) {
				if err := writeProjection(ctx, conn, p); err != nil {
					logger.Debug("supply stream closed", "error", err)
					return
				}
				last = p.ComputedAt
			}

			select {
			case <-ctx.Done():
				conn.Close(websocket.StatusNormalClosure, "") //nolint:errcheck
				return
			case <-ticker.C:
			}
		}
	}
}

func writeProjection(ctx context.Context, conn *websocket.Conn, p monitor.Projection) error {
	ctx, cancel := context.WithTimeout(ctx, streamWriteTimeout)
	defer cancel()
	return wsjson.Write(ctx, conn, p)
}

// streamAcceptOptions allows the same origins as the CORS middleware.
func streamAcceptOptions(frontendOrigin string) *websocket.AcceptOptions {
	if frontendOrigin == "" || frontendOrigin == "*" {
		return &websocket.AcceptOptions{InsecureSkipVerify: true}
	}
	patterns := []string{"ultrasound-dashboard-*.vercel.app"}
	if u, err := url.Parse(frontendOrigin); err == nil && u.Host != "" {
		patterns = append(patterns, u.Host)
	}
	return &websocket.AcceptOptions{OriginPatterns: patterns}
}
