package handler

import (
	"net/http"

	"bookbay-storefront/internal/middleware"
	"bookbay-storefront/internal/routeguard"
	"bookbay-storefront/internal/storefront"
)

// HomeResponse is the landing page: who is signed in and where they belong.
type HomeResponse struct {
	Session storefront.SessionView `json:"session"`
	Home    string                 `json:"home,omitempty"`
}

// Home serves the landing page for signed-in and anonymous visitors.
func Home(rules routeguard.Rules) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ws, ok := middleware.GetWorkspace(r.Context())
		if !ok {
			writeJSON(w, http.StatusOK, HomeResponse{})
			return
		}
		session := ws.State().Session
		writeJSON(w, http.StatusOK, HomeResponse{
			Session: session,
			Home:    rules.Home(string(session.Role)),
		})
	}
}

// Unauthorized is the page the guard sends anonymous visitors to.
func Unauthorized(rules routeguard.Rules) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"message": "You must be signed in to view this page",
			"login":   rules.LoginPath,
		})
	}
}
