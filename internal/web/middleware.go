// internal/web/middleware.go
package web

import (
	"context"
	"net/http"
	"net/url"

	"github.com/google/uuid"
)

// LoginPath is the entry point anonymous viewers are redirected to when they
// request a page that needs an identity.
const LoginPath = "/login"

// Viewer is the authenticated identity attached to a request.
type Viewer struct {
	ID    uuid.UUID `json:"id"`
	Email string    `json:"email"`
	Name  string    `json:"name"`
}

// Identity resolves the current viewer from a request and answers capability
// checks. The membership package provides the production implementation.
type Identity interface {
	ResolveViewer(r *http.Request) (*Viewer, bool)
	HasCapability(ctx context.Context, viewer *Viewer, capability string) bool
}

type contextKey int

const viewerKey contextKey = iota

// WithViewer resolves the session viewer, if any, and stores it on the
// request context. Anonymous requests pass through untouched.
func WithViewer(identity Identity) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if viewer, ok := identity.ResolveViewer(r); ok {
				r = r.WithContext(ContextWithViewer(r.Context(), viewer))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ContextWithViewer returns a copy of ctx carrying the viewer.
func ContextWithViewer(ctx context.Context, viewer *Viewer) context.Context {
	return context.WithValue(ctx, viewerKey, viewer)
}

// ViewerFrom returns the viewer attached to the context, if any.
func ViewerFrom(ctx context.Context) (*Viewer, bool) {
	viewer, ok := ctx.Value(viewerKey).(*Viewer)
	return viewer, ok
}

// RequireViewer redirects anonymous requests to the login entry point.
// Unauthenticated access is never an error page.
func RequireViewer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := ViewerFrom(r.Context()); !ok {
			RedirectToLogin(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireCapability gates a route on a named capability. Anonymous viewers
// are redirected to login; authenticated viewers lacking the capability get
// a 403.
func RequireCapability(identity Identity, capability string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			viewer, ok := ViewerFrom(r.Context())
			if !ok {
				RedirectToLogin(w, r)
				return
			}
			if !identity.HasCapability(r.Context(), viewer, capability) {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RedirectToLogin sends the viewer to the login page, preserving the page
// they asked for in the next parameter.
func RedirectToLogin(w http.ResponseWriter, r *http.Request) {
	target := LoginPath + "?next=" + url.QueryEscape(r.URL.RequestURI())
	http.Redirect(w, r, target, http.StatusFound)
}
