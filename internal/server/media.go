package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/Helli-o-s/Social-Media-Submission/internal/media"
	"github.com/Helli-o-s/Social-Media-Submission/internal/objectstore"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func (h *httpHandler) handleMedia(c *gin.Context) {
	key := strings.TrimPrefix(c.Param("key"), "/")
	file, err := h.objects.Open(key)
	if err != nil {
		h.objectError(c, key, err)
		return
	}
	defer closeQuietly(file)

	info, err := file.Stat()
	if err != nil {
		h.objectError(c, key, err)
		return
	}
	c.Header("Cache-Control", "public, max-age=31536000, immutable")
	http.ServeContent(c.Writer, c.Request, info.Name(), info.ModTime(), file)
}

func (h *httpHandler) handleThumbnail(c *gin.Context) {
	key := strings.TrimPrefix(c.Param("key"), "/")
	thumbnail, err := h.thumbnails.Thumbnail(key)
	if err != nil {
		if errors.Is(err, media.ErrUndecodable) {
			c.JSON(http.StatusUnsupportedMediaType, gin.H{"error": "unsupported_media"})
			return
		}
		h.objectError(c, key, err)
		return
	}
	c.Header("Cache-Control", "public, max-age=86400")
	c.Data(http.StatusOK, "image/jpeg", thumbnail)
}

func (h *httpHandler) objectError(c *gin.Context, key string, err error) {
	if errors.Is(err, objectstore.ErrNotFound) || errors.Is(err, objectstore.ErrInvalidKey) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
		return
	}
	h.logger.Error("object read failed", zap.String("key", key), zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": "read_failed"})
}
