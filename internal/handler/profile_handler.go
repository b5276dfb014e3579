package handler

import (
	"net/http"
)

// ProfileHandler serves the profile page and profile edits.
type ProfileHandler struct{}

func NewProfileHandler() *ProfileHandler {
	return &ProfileHandler{}
}

func (h *ProfileHandler) Show(w http.ResponseWriter, r *http.Request) {
	ws, ok := workspaceOr401(w, r)
	if !ok {
		return
	}
	_, err := ws.Profile.FetchProfile(r.Context(), ws.Token())
	writeState(w, r, ws, http.StatusOK, err, profileError)
}

// Edit patches the profile. A successful edit also updates the session's
// copy of the user, which the state in the response already reflects.
func (h *ProfileHandler) Edit(w http.ResponseWriter, r *http.Request) {
	ws, ok := workspaceOr401(w, r)
	if !ok {
		return
	}

	in, image, done, err := readProfileInput(w, r)
	defer done()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if in.Name == "" && in.Email == "" && image == nil {
		writeError(w, http.StatusBadRequest, "nothing to update")
		return
	}

	_, err = ws.Profile.EditProfile(r.Context(), ws.Token(), in, image)
	writeState(w, r, ws, http.StatusOK, err, profileError)
}
