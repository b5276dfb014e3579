package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// CatalogHandler serves the catalog pages and the seller's book actions.
// Every response carries the visitor's store state after the operation.
type CatalogHandler struct{}

func NewCatalogHandler() *CatalogHandler {
	return &CatalogHandler{}
}

// List loads the catalog. It backs /dashboard, /seller and /books.
func (h *CatalogHandler) List(w http.ResponseWriter, r *http.Request) {
	ws, ok := workspaceOr401(w, r)
	if !ok {
		return
	}
	_, err := ws.Catalog.List(r.Context(), ws.Token())
	writeState(w, r, ws, http.StatusOK, err, catalogError)
}

// Get focuses one book. It backs /books/{id} and /seller/edit/{id}.
func (h *CatalogHandler) Get(w http.ResponseWriter, r *http.Request) {
	ws, ok := workspaceOr401(w, r)
	if !ok {
		return
	}
	_, err := ws.Catalog.Get(r.Context(), ws.Token(), chi.URLParam(r, "id"))
	writeState(w, r, ws, http.StatusOK, err, catalogError)
}

func (h *CatalogHandler) Add(w http.ResponseWriter, r *http.Request) {
	ws, ok := workspaceOr401(w, r)
	if !ok {
		return
	}

	in, image, done, err := readBookInput(w, r)
	defer done()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if in.Title == nil || in.Author == nil || in.Price == nil || in.Category == nil {
		writeError(w, http.StatusBadRequest, "title, author, price and category are required")
		return
	}

	_, err = ws.Catalog.Add(r.Context(), ws.Token(), in, image)
	writeState(w, r, ws, http.StatusCreated, err, catalogError)
}

func (h *CatalogHandler) Edit(w http.ResponseWriter, r *http.Request) {
	ws, ok := workspaceOr401(w, r)
	if !ok {
		return
	}

	in, image, done, err := readBookInput(w, r)
	defer done()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	_, err = ws.Catalog.Edit(r.Context(), ws.Token(), chi.URLParam(r, "id"), in, image)
	writeState(w, r, ws, http.StatusOK, err, catalogError)
}

func (h *CatalogHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ws, ok := workspaceOr401(w, r)
	if !ok {
		return
	}
	err := ws.Catalog.Delete(r.Context(), ws.Token(), chi.URLParam(r, "id"))
	writeState(w, r, ws, http.StatusOK, err, catalogError)
}

// Reset clears the catalog's request state, keeping its data.
func (h *CatalogHandler) Reset(w http.ResponseWriter, r *http.Request) {
	ws, ok := workspaceOr401(w, r)
	if !ok {
		return
	}
	ws.Catalog.Reset()
	writeState(w, r, ws, http.StatusOK, nil, catalogError)
}
