package web

import (
	"net/url"
	"strconv"

	"github.com/Helli-o-s/Social-Media-Submission/internal/registry"
)

const dateLayout = "Jan 2, 2006"

// GridData populates the submission grid.
type GridData struct {
	View         registry.View
	ThumbnailURL func(imageURL string) string
	Deleting     func(id string) bool
}

func (d GridData) thumbnail(imageURL string) string {
	if d.ThumbnailURL == nil {
		return imageURL
	}
	return d.ThumbnailURL(imageURL)
}

func (d GridData) deleting(id string) bool {
	return d.Deleting != nil && d.Deleting(id)
}

// DashboardPageData populates the admin dashboard.
type DashboardPageData struct {
	Grid    GridData
	Notice  *Notice
	LiveURL string
}

func dashboardURL(view registry.View, page int, image string) string {
	values := url.Values{}
	if view.Field != "" {
		values.Set("field", string(view.Field))
	}
	if view.Query != "" {
		values.Set("q", view.Query)
	}
	if page > 1 {
		values.Set("page", strconv.Itoa(page))
	}
	if image != "" {
		values.Set("view", image)
	}
	encoded := values.Encode()
	if encoded == "" {
		return "/admin"
	}
	return "/admin?" + encoded
}
