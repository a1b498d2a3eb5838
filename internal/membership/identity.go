// internal/membership/identity.go
package membership

import (
	"context"
	"net/http"

	"locallibrary/internal/web"
)

// Identity adapts sessions + the membership service to the web layer's
// viewer-resolution contract.
type Identity struct {
	sessions *Sessions
	service  Service
}

func NewIdentity(sessions *Sessions, service Service) *Identity {
	return &Identity{sessions: sessions, service: service}
}

// ResolveViewer reads the session cookie and loads the member behind it.
// Any failure yields an anonymous viewer, never an error response.
func (i *Identity) ResolveViewer(r *http.Request) (*web.Viewer, bool) {
	cookie, err := r.Cookie(SessionCookie)
	if err != nil {
		return nil, false
	}

	memberID, err := i.sessions.Verify(cookie.Value)
	if err != nil {
		return nil, false
	}

	member, err := i.service.GetMember(r.Context(), memberID)
	if err != nil {
		return nil, false
	}

	return &web.Viewer{ID: member.ID, Email: member.Email, Name: member.Name}, true
}

// HasCapability answers the web layer's capability checks. Lookup errors
// count as not holding the capability.
func (i *Identity) HasCapability(ctx context.Context, viewer *web.Viewer, capability string) bool {
	has, err := i.service.HasCapability(ctx, viewer.ID, capability)
	return err == nil && has
}
