// internal/web/render.go
package web

import (
	"encoding/json"
	"net/http"
)

// Renderer turns a named view plus its context into a response body.
// Handlers only choose the view name and assemble the context; how the view
// is materialized (JSON today, HTML templates behind the same interface) is
// the renderer's business.
type Renderer interface {
	Render(w http.ResponseWriter, status int, view string, data map[string]any)
}

// JSON renders every view as a JSON document carrying the view name and its
// context mapping.
type JSON struct{}

func (JSON) Render(w http.ResponseWriter, status int, view string, data map[string]any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"view":    view,
		"context": data,
	})
}
