package api

import (
	"net/http"
	"strconv"

	"github.com/starford/mocsync/internal/moc"
	"github.com/starford/mocsync/internal/mocservice"
)

// Handler holds API route handlers.
type Handler struct {
	svc *mocservice.Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *mocservice.Service) *Handler {
	return &Handler{svc: svc}
}

// ListRegistry handles GET /api/registry.
//
//	@Summary		List registered index notes
//	@Tags			registry
//	@Produce		json
//	@Success		200	{object}	RegistryResponse
//	@Security		BearerAuth
//	@Router			/registry [get]
func (h *Handler) ListRegistry(w http.ResponseWriter, r *http.Request) {
	entries := h.svc.Entries(r.Context())
	writeJSON(w, http.StatusOK, RegistryResponse{Entries: entries, Total: len(entries)})
}

// Resolve handles GET /api/registry/resolve.
//
//	@Summary		Resolve a prefix to its index note
//	@Tags			registry
//	@Produce		json
//	@Param			prefix	query		string	true	"Note prefix"
//	@Success		200		{object}	ResolveResponse
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/registry/resolve [get]
func (h *Handler) Resolve(w http.ResponseWriter, r *http.Request) {
	prefix := r.URL.Query().Get("prefix")
	path, err := h.svc.Resolve(r.Context(), prefix)
	if err != nil {
		writeError(w, "resolve", err)
		return
	}
	writeJSON(w, http.StatusOK, ResolveResponse{Prefix: prefix, Path: path})
}

// IndexLinks handles GET /api/registry/links.
//
//	@Summary		List the links held by an index note
//	@Tags			registry
//	@Produce		json
//	@Param			prefix	query		string	true	"Note prefix"
//	@Success		200		{object}	IndexDetail
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/registry/links [get]
func (h *Handler) IndexLinks(w http.ResponseWriter, r *http.Request) {
	detail, err := h.svc.Index(r.Context(), r.URL.Query().Get("prefix"))
	if err != nil {
		writeError(w, "index links", err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

// Rebuild handles POST /api/registry/rebuild.
//
//	@Summary		Rescan the vault and rebuild the registry
//	@Tags			registry
//	@Produce		json
//	@Success		200	{object}	RebuildResponse
//	@Security		BearerAuth
//	@Router			/registry/rebuild [post]
func (h *Handler) Rebuild(w http.ResponseWriter, r *http.Request) {
	n, err := h.svc.Rebuild(r.Context())
	if err != nil {
		writeError(w, "rebuild", err)
		return
	}
	writeJSON(w, http.StatusOK, RebuildResponse{Total: n})
}

// Classify handles GET /api/classify.
//
//	@Summary		Classify a note name
//	@Tags			classify
//	@Produce		json
//	@Param			name	query		string	true	"Note file name"
//	@Success		200		{object}	ClassifyResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/classify [get]
func (h *Handler) Classify(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	c, err := h.svc.Classify(r.Context(), name)
	if err != nil {
		writeError(w, "classify", err)
		return
	}
	resp := ClassifyResponse{Name: name, Index: c.Index, Prefix: c.Prefix, Rule: string(c.Rule)}
	if !c.Index {
		resp.NotePrefix, _ = moc.NotePrefix(moc.BaseName(name))
	}
	writeJSON(w, http.StatusOK, resp)
}

// Sync handles POST /api/sync.
//
//	@Summary		Link an existing note into its index note
//	@Tags			sync
//	@Produce		json
//	@Param			path	query		string	true	"Note path relative to the vault"
//	@Success		200		{object}	SyncResult
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/sync [post]
func (h *Handler) Sync(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'path' is required"))
		return
	}
	res, err := h.svc.SyncNote(r.Context(), path)
	if err != nil {
		writeError(w, "sync", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Journal handles GET /api/journal.
//
//	@Summary		Recent link activity
//	@Tags			journal
//	@Produce		json
//	@Param			limit	query		int		false	"Max entries"
//	@Param			note	query		string	false	"Only entries for this note"
//	@Success		200		{object}	JournalResponse
//	@Failure		503		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/journal [get]
func (h *Handler) Journal(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var (
		events []LinkEvent
		err    error
	)
	if note := q.Get("note"); note != "" {
		events, err = h.svc.NoteHistory(r.Context(), note)
	} else {
		limit, _ := strconv.Atoi(q.Get("limit"))
		events, err = h.svc.Activity(r.Context(), limit)
	}
	if err != nil {
		writeError(w, "journal", err)
		return
	}
	writeJSON(w, http.StatusOK, JournalResponse{Events: events})
}
