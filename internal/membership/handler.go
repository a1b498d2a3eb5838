// internal/membership/handler.go
package membership

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"

	"locallibrary/internal/web"
)

type Handler struct {
	service  Service
	sessions *Sessions
	renderer web.Renderer
}

func NewHandler(service Service, sessions *Sessions, renderer web.Renderer) *Handler {
	return &Handler{service: service, sessions: sessions, renderer: renderer}
}

// LoginForm is the login entry point anonymous viewers get redirected to.
func (h *Handler) LoginForm(w http.ResponseWriter, r *http.Request) {
	h.renderer.Render(w, http.StatusOK, "login", map[string]any{
		"next": r.URL.Query().Get("next"),
	})
}

// Login authenticates and opens a session, then sends the viewer back to the
// page they originally asked for.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var form struct {
		Email    string `json:"email"`
		Password string `json:"password"`
		Next     string `json:"next"`
	}
	if err := json.NewDecoder(r.Body).Decode(&form); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	member, err := h.service.Authenticate(r.Context(), form.Email, form.Password)
	if err != nil {
		switch {
		case errors.Is(err, ErrRateLimited):
			http.Error(w, err.Error(), http.StatusTooManyRequests)
		case errors.Is(err, ErrInvalidCredentials):
			h.renderer.Render(w, http.StatusOK, "login", map[string]any{
				"next":   form.Next,
				"errors": map[string]any{"__all__": "Please enter a correct email and password."},
			})
		default:
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
		return
	}

	token, err := h.sessions.Issue(member.ID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    token,
		Path:     "/",
		MaxAge:   int(h.sessions.TTL().Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, safeNext(form.Next), http.StatusFound)
}

// Logout closes the session.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})
	http.Redirect(w, r, web.LoginPath, http.StatusFound)
}

// Register creates a new member account.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var form struct {
		Email    string `json:"email"`
		Name     string `json:"name"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&form); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	member, err := h.service.RegisterMember(r.Context(), form.Email, form.Name, form.Password)
	if err != nil {
		switch {
		case errors.Is(err, ErrRateLimited):
			http.Error(w, err.Error(), http.StatusTooManyRequests)
		case errors.Is(err, ErrDuplicateEmail):
			h.renderer.Render(w, http.StatusOK, "register", map[string]any{
				"errors": map[string]any{"email": err.Error()},
			})
		default:
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(member)
}

// safeNext only follows same-site relative redirect targets.
func safeNext(next string) string {
	if next == "" {
		return "/catalog"
	}
	u, err := url.Parse(next)
	if err != nil || u.IsAbs() || u.Host != "" {
		return "/catalog"
	}
	return next
}
