// Package web holds the server-rendered pages. Components are authored in .templ files; the
// _templ.go files next to them are generated.
package web

//go:generate go run github.com/a-h/templ/cmd/templ@v0.3.977 generate

// Notice is a flash message rendered above page content.
type Notice struct {
	Kind    string
	Message string
}

// Success builds a success notice.
func Success(message string) *Notice {
	return &Notice{Kind: "success", Message: message}
}

// Failure builds an error notice.
func Failure(message string) *Notice {
	return &Notice{Kind: "error", Message: message}
}

const stylesheet = `
body{font-family:system-ui,sans-serif;margin:0;background:#f5f6f8;color:#1f2430}
nav{display:flex;gap:1rem;align-items:center;padding:.75rem 1.5rem;background:#1f2430}
nav a,nav button{color:#fff;text-decoration:none;background:none;border:0;font:inherit;cursor:pointer}
nav form{margin:0 0 0 auto}
main{max-width:960px;margin:1.5rem auto;padding:0 1rem}
.notice{padding:.75rem 1rem;border-radius:6px;margin-bottom:1rem}
.notice-success{background:#dcfce7}.notice-error{background:#fee2e2}
form.stack{display:flex;flex-direction:column;gap:.75rem;max-width:420px}
.grid{display:grid;grid-template-columns:repeat(auto-fill,minmax(280px,1fr));gap:1rem}
.card{background:#fff;border-radius:8px;padding:1rem;box-shadow:0 1px 3px rgba(0,0,0,.1)}
.thumbs{display:flex;flex-wrap:wrap;gap:.5rem}.thumbs img{width:72px;height:72px;object-fit:cover;border-radius:4px}
.pager{display:flex;gap:1rem;align-items:center;margin-top:1rem}
.modal{position:fixed;inset:0;background:rgba(0,0,0,.8);display:flex;align-items:center;justify-content:center}
.modal img{max-width:90vw;max-height:85vh}
`

// SubmitPageData populates the public submission form.
type SubmitPageData struct {
	Name          string
	Handle        string
	SelectedFiles int
	Notice        *Notice
	SignedIn      bool
}

// LoginPageData populates the admin sign-in form.
type LoginPageData struct {
	Email  string
	Notice *Notice
}

// EditPageData populates the admin edit form.
type EditPageData struct {
	ID     string
	Name   string
	Handle string
	Notice *Notice
}
