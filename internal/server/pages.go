package server

import (
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/Helli-o-s/Social-Media-Submission/internal/auth"
	"github.com/Helli-o-s/Social-Media-Submission/internal/intake"
	"github.com/Helli-o-s/Social-Media-Submission/internal/mutation"
	"github.com/Helli-o-s/Social-Media-Submission/internal/registry"
	"github.com/Helli-o-s/Social-Media-Submission/internal/submissions"
	"github.com/Helli-o-s/Social-Media-Submission/internal/web"
	"github.com/a-h/templ"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	noticeUpdated       = "updated"
	noticeDeleted       = "deleted"
	noticeDeleteFailed  = "delete_failed"
	noticeDeletePending = "delete_pending"
)

func (h *httpHandler) render(c *gin.Context, status int, title string, body templ.Component) {
	c.Status(status)
	c.Header("Content-Type", "text/html; charset=utf-8")
	if err := web.Layout(title, currentUser(c), body).Render(c.Request.Context(), c.Writer); err != nil {
		h.logger.Error("render page failed", zap.String("page", title), zap.Error(err))
	}
}

func (h *httpHandler) handleSubmitForm(c *gin.Context) {
	h.render(c, http.StatusOK, "Submit", web.SubmitPage(web.SubmitPageData{SignedIn: currentUser(c) != nil}))
}

func (h *httpHandler) handleSubmit(c *gin.Context) {
	name := c.PostForm("name")
	handle := c.PostForm("handle")

	var headers []*multipart.FileHeader
	if form, err := c.MultipartForm(); err == nil && form != nil {
		headers = form.File["images"]
	}
	files := make([]intake.File, 0, len(headers))
	for _, header := range headers {
		header := header
		files = append(files, intake.File{
			Name: header.Filename,
			Size: header.Size,
			Open: func() (io.ReadCloser, error) {
				return header.Open()
			},
		})
	}

	request := intake.Request{Name: name, Handle: handle, Files: files}
	if user := currentUser(c); user != nil {
		request.UserID = user.UserID
	}

	_, err := h.intake.Submit(c.Request.Context(), request)
	if err == nil {
		h.render(c, http.StatusOK, "Submit", web.SubmitPage(web.SubmitPageData{
			Notice:   web.Success(intake.SuccessMessage),
			SignedIn: currentUser(c) != nil,
		}))
		return
	}

	status := http.StatusInternalServerError
	if isValidationError(err) {
		status = http.StatusBadRequest
	}
	h.render(c, status, "Submit", web.SubmitPage(web.SubmitPageData{
		Name:          name,
		Handle:        handle,
		SelectedFiles: len(files),
		Notice:        web.Failure(intake.UserMessage(err)),
		SignedIn:      currentUser(c) != nil,
	}))
}

func isValidationError(err error) bool {
	var tooLarge *intake.FileTooLargeError
	return errors.Is(err, intake.ErrNoImages) ||
		errors.Is(err, intake.ErrMissingName) ||
		errors.Is(err, intake.ErrMissingHandle) ||
		errors.Is(err, submissions.ErrTextTooLong) ||
		errors.As(err, &tooLarge)
}

func (h *httpHandler) handleLoginForm(c *gin.Context) {
	if currentUser(c) != nil {
		c.Redirect(http.StatusFound, "/admin")
		return
	}
	h.render(c, http.StatusOK, "Admin login", web.LoginPage(web.LoginPageData{}))
}

func (h *httpHandler) handleLogin(c *gin.Context) {
	email := strings.TrimSpace(c.PostForm("email"))
	password := c.PostForm("password")

	token, _, err := h.sessions.SignIn(c.Request.Context(), email, password)
	if err != nil {
		status := http.StatusInternalServerError
		message := "Sign in failed. Please try again."
		if errors.Is(err, auth.ErrInvalidCredentials) {
			status = http.StatusUnauthorized
			message = "Invalid email or password."
		}
		h.render(c, status, "Admin login", web.LoginPage(web.LoginPageData{
			Email:  email,
			Notice: web.Failure(message),
		}))
		return
	}

	h.setSessionCookie(c, token, int(h.sessions.SessionTTL().Seconds()))
	c.Redirect(http.StatusSeeOther, "/admin")
}

func (h *httpHandler) handleLogout(c *gin.Context) {
	if token := c.GetString(tokenContextKey); token != "" {
		if err := h.sessions.SignOut(c.Request.Context(), token); err != nil {
			h.logger.Warn("sign out failed", zap.Error(err))
		}
	}
	h.setSessionCookie(c, "", -1)
	c.Redirect(http.StatusSeeOther, "/")
}

type listingQuery struct {
	field submissions.Field
	query string
	page  int
}

func parseListingQuery(c *gin.Context) (listingQuery, error) {
	listing := listingQuery{field: submissions.FieldHandle, page: 1, query: c.Query("q")}
	if raw := c.Query("field"); raw != "" {
		field, err := submissions.ParseField(raw)
		if err != nil {
			return listing, err
		}
		listing.field = field
	}
	if raw := c.Query("page"); raw != "" {
		page, err := strconv.Atoi(raw)
		if err == nil {
			listing.page = page
		}
	}
	return listing, nil
}

func (h *httpHandler) handleDashboard(c *gin.Context) {
	listing, err := parseListingQuery(c)
	if err != nil {
		listing.field = submissions.FieldHandle
	}

	view := registry.View{Field: listing.field, Query: listing.query, Page: 1}
	rows, err := h.submissions.List(c.Request.Context())
	if err != nil {
		h.logger.Error("dashboard load failed", zap.Error(err))
		view.LoadError = registry.LoadErrorMessage
	} else {
		page := registry.Select(rows, listing.field, listing.query, listing.page, registry.DefaultPageSize)
		view.Items = page.Items
		view.Page = page.Page
		view.PageCount = page.PageCount
		view.Total = page.Total
		view.ActiveImage = c.Query("view")
	}

	h.render(c, http.StatusOK, "Admin Dashboard", web.DashboardPage(web.DashboardPageData{
		Grid:    h.gridData(view),
		Notice:  dashboardNotice(c.Query("notice")),
		LiveURL: liveURL,
	}))
}

func dashboardNotice(code string) *web.Notice {
	switch code {
	case noticeUpdated:
		return web.Success(mutation.UpdatedMessage)
	case noticeDeleted:
		return web.Success(mutation.DeletedMessage)
	case noticeDeleteFailed:
		return web.Failure(mutation.DeleteFailedMessage)
	case noticeDeletePending:
		return web.Failure(mutation.DeleteMessage(mutation.ErrDeleteInProgress))
	default:
		return nil
	}
}

func (h *httpHandler) gridData(view registry.View) web.GridData {
	return web.GridData{
		View:         view,
		ThumbnailURL: h.thumbnailURL,
		Deleting:     h.editor.Deleting,
	}
}

func (h *httpHandler) thumbnailURL(imageURL string) string {
	key, ok := h.objects.KeyFromURL(imageURL)
	if !ok {
		return imageURL
	}
	return "/thumbnails/" + url.PathEscape(key)
}

func (h *httpHandler) handleEditForm(c *gin.Context) {
	record, err := h.submissions.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, submissions.ErrNotFound) {
			status = http.StatusNotFound
		}
		h.render(c, status, "Edit submission", web.EditPage(web.EditPageData{
			ID:     c.Param("id"),
			Notice: web.Failure("Submission not found."),
		}))
		return
	}
	draft := mutation.BeginEdit(record)
	h.render(c, http.StatusOK, "Edit submission", web.EditPage(web.EditPageData{
		ID:     draft.ID,
		Name:   draft.Name,
		Handle: draft.Handle,
	}))
}

func (h *httpHandler) handleEdit(c *gin.Context) {
	draft := mutation.Draft{
		ID:     c.Param("id"),
		Name:   c.PostForm("name"),
		Handle: c.PostForm("handle"),
	}
	if _, err := h.editor.Save(c.Request.Context(), draft); err != nil {
		status := http.StatusInternalServerError
		if isEditValidationError(err) {
			status = http.StatusBadRequest
		} else if errors.Is(err, submissions.ErrNotFound) {
			status = http.StatusNotFound
		}
		h.render(c, status, "Edit submission", web.EditPage(web.EditPageData{
			ID:     draft.ID,
			Name:   draft.Name,
			Handle: draft.Handle,
			Notice: web.Failure(mutation.SaveMessage(err)),
		}))
		return
	}
	c.Redirect(http.StatusSeeOther, "/admin?notice="+noticeUpdated)
}

func isEditValidationError(err error) bool {
	return errors.Is(err, submissions.ErrMissingName) ||
		errors.Is(err, submissions.ErrMissingHandle) ||
		errors.Is(err, submissions.ErrTextTooLong) ||
		errors.Is(err, mutation.ErrMissingID)
}

func (h *httpHandler) handleDelete(c *gin.Context) {
	err := h.editor.Delete(c.Request.Context(), c.Param("id"))
	switch {
	case err == nil:
		c.Redirect(http.StatusSeeOther, "/admin?notice="+noticeDeleted)
	case errors.Is(err, mutation.ErrDeleteInProgress):
		c.Redirect(http.StatusSeeOther, "/admin?notice="+noticeDeletePending)
	default:
		c.Redirect(http.StatusSeeOther, "/admin?notice="+noticeDeleteFailed)
	}
}
