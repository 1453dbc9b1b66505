// Package web serves the player page and its form actions.
package web

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/queueplayer/internal/app/player"
	"github.com/osa030/queueplayer/internal/app/registry"
	"github.com/osa030/queueplayer/internal/ui"
)

// Handler serves session pages.
type Handler struct {
	registry *registry.Registry
}

// NewHandler creates a new page handler.
func NewHandler(reg *registry.Registry) *Handler {
	return &Handler{registry: reg}
}

// Register adds the page routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /{$}", h.launch)
	mux.HandleFunc("GET /healthz", h.health)
	mux.HandleFunc("GET /s/{id}", h.page)
	mux.HandleFunc("GET /s/{id}/state", h.state)
	mux.HandleFunc("POST /s/{id}/toggle", h.click(ui.ActionToggle))
	mux.HandleFunc("POST /s/{id}/next", h.click(ui.ActionNext))
	mux.HandleFunc("POST /s/{id}/play", h.click(ui.ActionPlay))
}

// PagePath returns the page URL path of a session.
func PagePath(id string) string {
	return "/s/" + id
}

func linksFor(id string) ui.Links {
	base := PagePath(id)
	return ui.Links{
		Toggle: base + "/toggle",
		Next:   base + "/next",
		Play:   base + "/play",
	}
}

// launch creates a session from the link parameters and sends the browser to its page.
func (h *Handler) launch(w http.ResponseWriter, r *http.Request) {
	entry := h.registry.Create(r.URL.Query())
	http.Redirect(w, r, PagePath(entry.ID), http.StatusSeeOther)
}

func (h *Handler) page(w http.ResponseWriter, r *http.Request) {
	entry, ok := h.lookup(w, r)
	if !ok {
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := entry.Page.WriteHTML(w, linksFor(entry.ID)); err != nil {
		zlog.Error().Err(err).Msgf("failed to render page: session=%s", entry.ID)
	}
}

type stateResponse struct {
	Session player.Snapshot `json:"session"`
	Page    ui.Snapshot     `json:"page"`
}

func (h *Handler) state(w http.ResponseWriter, r *http.Request) {
	entry, ok := h.lookup(w, r)
	if !ok {
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(stateResponse{
		Session: entry.Session.Snapshot(),
		Page:    entry.Page.Snapshot(),
	}); err != nil {
		zlog.Error().Err(err).Msgf("failed to encode state: session=%s", entry.ID)
	}
}

func (h *Handler) click(kind ui.ActionKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entry, ok := h.lookup(w, r)
		if !ok {
			return
		}

		action := ui.Action{Kind: kind}
		if kind == ui.ActionPlay {
			action.URI = strings.TrimSpace(r.FormValue("uri"))
			if action.URI == "" {
				http.Error(w, "uri is required", http.StatusBadRequest)
				return
			}
		}

		// Action failures are already shown in the page status.
		err := entry.Page.Click(r.Context(), action)
		switch {
		case errors.Is(err, ui.ErrUnbound):
			http.Error(w, "player is still starting", http.StatusConflict)
			return
		case errors.Is(err, ui.ErrDisabled):
			http.Error(w, "control is disabled", http.StatusConflict)
			return
		case err != nil:
			zlog.Debug().Err(err).Msgf("page action failed: session=%s action=%s", entry.ID, kind)
		}

		http.Redirect(w, r, PagePath(entry.ID), http.StatusSeeOther)
	}
}

func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":   "ok",
		"sessions": h.registry.Count(),
	})
}

func (h *Handler) lookup(w http.ResponseWriter, r *http.Request) (*registry.Entry, bool) {
	entry, err := h.registry.Get(r.PathValue("id"))
	if err != nil {
		http.Error(w, "session not found", http.StatusNotFound)
		return nil, false
	}
	return entry, true
}
