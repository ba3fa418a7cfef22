package server

import (
	"io"
	"net/http"
	"time"

	"github.com/Helli-o-s/Social-Media-Submission/internal/submissions"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	defaultHeartbeatPeriod = 25 * time.Second

	streamEventSubmission = "submission"
	streamEventHeartbeat  = "heartbeat"
	streamEventSignedOut  = "signed_out"
)

type streamSubmission struct {
	ID                string    `json:"id"`
	Name              string    `json:"name"`
	SocialMediaHandle string    `json:"social_media_handle"`
	ImageURLs         []string  `json:"image_urls"`
	CreatedAt         time.Time `json:"created_at"`
}

func newStreamSubmission(row submissions.Submission) streamSubmission {
	return streamSubmission{
		ID:                row.ID,
		Name:              row.Name,
		SocialMediaHandle: row.SocialMediaHandle,
		ImageURLs:         row.ImageURLs,
		CreatedAt:         row.CreatedAt,
	}
}

// handleStream pushes inserted submissions as server-sent events until the client disconnects or
// the session ends.
func (h *httpHandler) handleStream(c *gin.Context) {
	ctx := c.Request.Context()
	inserts, unsubscribe := h.submissions.SubscribeToInserts(ctx)
	defer unsubscribe()

	var sessionChanged <-chan struct{}
	provider := currentProvider(c)
	if provider != nil {
		sessionChanged = provider.Changed()
	}

	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	c.Writer.Flush()

	c.Stream(func(_ io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case row, ok := <-inserts:
			if !ok {
				return false
			}
			c.SSEvent(streamEventSubmission, newStreamSubmission(row))
			return true
		case <-sessionChanged:
			if provider.State().Authenticated() {
				return true
			}
			h.logger.Info("stream session signed out", zap.String("session_id", provider.SessionID()))
			c.SSEvent(streamEventSignedOut, gin.H{})
			return false
		case now := <-heartbeat.C:
			c.SSEvent(streamEventHeartbeat, gin.H{"at": now.UTC().Format(time.RFC3339)})
			return true
		}
	})
}
