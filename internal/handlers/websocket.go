package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"

	"github.com/ternarybob/harvester/internal/common"
	"github.com/ternarybob/harvester/internal/interfaces"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for local development
	},
}

const writeWait = 10 * time.Second

// ProgressStreamHandler pushes job record snapshots over a websocket until
// the job reaches a terminal status or the client goes away
type ProgressStreamHandler struct {
	store        interfaces.JobStore
	throttle     time.Duration
	pollInterval time.Duration
	logger       arbor.ILogger
}

func NewProgressStreamHandler(store interfaces.JobStore, config *common.WebSocketConfig, logger arbor.ILogger) *ProgressStreamHandler {
	return &ProgressStreamHandler{
		store:        store,
		throttle:     common.ParseDurationOr(config.ThrottleInterval, 500*time.Millisecond),
		pollInterval: common.ParseDurationOr(config.PollInterval, 250*time.Millisecond),
		logger:       logger,
	}
}

// HandleProgressStream streams the record of one job.
// GET /ws/progress?id=...
func (h *ProgressStreamHandler) HandleProgressStream(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if id == "" {
		WriteError(w, http.StatusBadRequest, "missing id")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to upgrade progress websocket")
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Drain client frames so close messages are processed
	common.SafeGo(h.logger, "progressStreamReader", func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	h.logger.Debug().Str("job_id", id).Msg("Progress stream opened")
	h.stream(ctx, conn, id)
}

func (h *ProgressStreamHandler) stream(ctx context.Context, conn *websocket.Conn, id string) {
	limiter := rate.NewLimiter(rate.Every(h.throttle), 1)
	ticker := time.NewTicker(h.pollInterval)
	defer ticker.Stop()

	var lastSent time.Time
	for {
		record, ok := h.store.Get(id)
		if !ok {
			h.write(conn, map[string]string{"error": "not_found", "id": id})
			h.close(conn, "not_found")
			return
		}

		terminal := record.Status.IsTerminal()
		if record.UpdatedAt.After(lastSent) && (terminal || limiter.Allow()) {
			if err := h.write(conn, record); err != nil {
				h.logger.Debug().Err(err).Str("job_id", id).Msg("Progress stream write failed")
				return
			}
			lastSent = record.UpdatedAt
		}
		if terminal {
			h.close(conn, string(record.Status))
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (h *ProgressStreamHandler) write(conn *websocket.Conn, v interface{}) error {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(v)
}

func (h *ProgressStreamHandler) close(conn *websocket.Conn, reason string) {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason)
	conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
}
