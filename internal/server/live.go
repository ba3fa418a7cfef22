package server

import (
	"bytes"
	"context"
	"errors"
	"net"
	"time"

	"github.com/Helli-o-s/Social-Media-Submission/internal/mutation"
	"github.com/Helli-o-s/Social-Media-Submission/internal/registry"
	"github.com/Helli-o-s/Social-Media-Submission/internal/session"
	"github.com/Helli-o-s/Social-Media-Submission/internal/submissions"
	"github.com/Helli-o-s/Social-Media-Submission/internal/web"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	liveWriteWait      = 10 * time.Second
	livePongWait       = 60 * time.Second
	livePingPeriod     = (livePongWait * 9) / 10
	liveMaxMessageSize = 4096
	liveOutboxSize     = 16

	liveTypeSearch     = "search"
	liveTypeField      = "field"
	liveTypePage       = "page"
	liveTypeOpenImage  = "open_image"
	liveTypeCloseImage = "close_image"
	liveTypeEdit       = "edit"
	liveTypeDelete     = "delete"

	liveTypeView      = "view"
	liveTypeNotice    = "notice"
	liveTypeSignedOut = "signed_out"
)

var liveUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

type liveClientMessage struct {
	Type   string `json:"type"`
	Query  string `json:"query"`
	Field  string `json:"field"`
	Page   int    `json:"page"`
	URL    string `json:"url"`
	ID     string `json:"id"`
	Name   string `json:"name"`
	Handle string `json:"handle"`
}

type liveViewMessage struct {
	Type      string `json:"type"`
	HTML      string `json:"html"`
	Page      int    `json:"page"`
	PageCount int    `json:"page_count"`
	Total     int    `json:"total"`
	Loading   bool   `json:"loading"`
}

type liveNoticeMessage struct {
	Type    string `json:"type"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

type liveSignalMessage struct {
	Type string `json:"type"`
}

// liveConnection drives one admin dashboard socket: a registry owns the list, the reader turns
// client messages into registry commands and mutations, the writer pushes rendered views.
type liveConnection struct {
	handler  *httpHandler
	conn     *websocket.Conn
	registry *registry.Registry
	editor   *mutation.Editor
	provider *session.Provider
	outbox   chan interface{}
	logger   *zap.Logger
}

func (h *httpHandler) handleLive(c *gin.Context) {
	conn, err := liveUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Debug("live upgrade failed", zap.Error(err))
		return
	}
	defer closeQuietly(conn)

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	reg, err := registry.New(registry.Config{
		Store:            h.submissions,
		Feed:             h.submissions,
		DebounceInterval: h.debounceInterval,
		Logger:           h.logger,
	})
	if err != nil {
		h.logger.Error("live registry failed", zap.Error(err))
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "registry unavailable"),
			time.Now().Add(liveWriteWait))
		return
	}
	go func() {
		if err := reg.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			h.logger.Warn("live registry stopped", zap.Error(err))
		}
	}()

	live := &liveConnection{
		handler:  h,
		conn:     conn,
		registry: reg,
		editor:   h.editor.WithReconciler(reg),
		provider: currentProvider(c),
		outbox:   make(chan interface{}, liveOutboxSize),
		logger:   h.logger,
	}
	go live.readPump(ctx, cancel)
	live.writePump(ctx)
}

func (l *liveConnection) readPump(ctx context.Context, cancel context.CancelFunc) {
	defer cancel()

	l.conn.SetReadLimit(liveMaxMessageSize)
	_ = l.conn.SetReadDeadline(time.Now().Add(livePongWait))
	l.conn.SetPongHandler(func(string) error {
		return l.conn.SetReadDeadline(time.Now().Add(livePongWait))
	})

	for {
		var message liveClientMessage
		if err := l.conn.ReadJSON(&message); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				l.logger.Debug("live read failed", zap.Error(err))
			}
			return
		}
		l.dispatch(ctx, message)
	}
}

func (l *liveConnection) dispatch(ctx context.Context, message liveClientMessage) {
	var err error
	switch message.Type {
	case liveTypeSearch:
		err = l.registry.SetQuery(ctx, message.Query)
	case liveTypeField:
		field, parseErr := submissions.ParseField(message.Field)
		if parseErr != nil {
			l.notice(ctx, web.Failure("Unknown search field."))
			return
		}
		err = l.registry.SetField(ctx, field)
	case liveTypePage:
		err = l.registry.SetPage(ctx, message.Page)
	case liveTypeOpenImage:
		err = l.registry.OpenImage(ctx, message.URL)
	case liveTypeCloseImage:
		err = l.registry.CloseImage(ctx)
	case liveTypeEdit:
		draft := mutation.Draft{ID: message.ID, Name: message.Name, Handle: message.Handle}
		go func() {
			_, saveErr := l.editor.Save(ctx, draft)
			l.notice(ctx, outcomeNotice(mutation.SaveMessage(saveErr), saveErr))
		}()
	case liveTypeDelete:
		id := message.ID
		go func() {
			deleteErr := l.editor.Delete(ctx, id)
			l.notice(ctx, outcomeNotice(mutation.DeleteMessage(deleteErr), deleteErr))
		}()
	default:
		l.logger.Debug("live message ignored", zap.String("type", message.Type))
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		l.logger.Debug("live command rejected", zap.String("type", message.Type), zap.Error(err))
	}
}

func outcomeNotice(message string, err error) *web.Notice {
	if err != nil {
		return web.Failure(message)
	}
	return web.Success(message)
}

func (l *liveConnection) notice(ctx context.Context, notice *web.Notice) {
	select {
	case l.outbox <- liveNoticeMessage{Type: liveTypeNotice, Kind: notice.Kind, Message: notice.Message}:
	case <-ctx.Done():
	}
}

func (l *liveConnection) writePump(ctx context.Context) {
	ticker := time.NewTicker(livePingPeriod)
	defer ticker.Stop()

	var sessionChanged <-chan struct{}
	if l.provider != nil {
		sessionChanged = l.provider.Changed()
	}

	if err := l.writeView(ctx, l.registry.View()); err != nil {
		return
	}
	for {
		select {
		case <-ctx.Done():
			_ = l.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(liveWriteWait))
			return
		case view := <-l.registry.Updates():
			if err := l.writeView(ctx, view); err != nil {
				return
			}
		case message := <-l.outbox:
			if err := l.write(message); err != nil {
				return
			}
		case <-sessionChanged:
			if l.provider.State().Authenticated() {
				continue
			}
			l.logger.Info("live session signed out", zap.String("session_id", l.provider.SessionID()))
			_ = l.write(liveSignalMessage{Type: liveTypeSignedOut})
			_ = l.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "signed out"),
				time.Now().Add(liveWriteWait))
			return
		case <-ticker.C:
			_ = l.conn.SetWriteDeadline(time.Now().Add(liveWriteWait))
			if err := l.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (l *liveConnection) writeView(ctx context.Context, view registry.View) error {
	var html bytes.Buffer
	grid := web.Grid(web.GridData{
		View:         view,
		ThumbnailURL: l.handler.thumbnailURL,
		Deleting:     l.editor.Deleting,
	})
	if err := grid.Render(ctx, &html); err != nil {
		l.logger.Error("live render failed", zap.Error(err))
		return err
	}
	return l.write(liveViewMessage{
		Type:      liveTypeView,
		HTML:      html.String(),
		Page:      view.Page,
		PageCount: view.PageCount,
		Total:     view.Total,
		Loading:   view.Loading,
	})
}

func (l *liveConnection) write(message interface{}) error {
	_ = l.conn.SetWriteDeadline(time.Now().Add(liveWriteWait))
	if err := l.conn.WriteJSON(message); err != nil {
		if !errors.Is(err, websocket.ErrCloseSent) && !errors.Is(err, net.ErrClosed) {
			l.logger.Debug("live write failed", zap.Error(err))
		}
		return err
	}
	return nil
}
