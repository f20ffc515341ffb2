package app

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/MrWong99/tngbot/internal/command"
	"github.com/MrWong99/tngbot/internal/roster"
	"github.com/MrWong99/tngbot/pkg/markov"
)

// api serves the read-only character endpoints:
//
//	GET /characters               {"characters": [...]}
//	GET /characters/{name}/quote  {"character": ..., "text": ..., "attempts": n}
//
// An unknown name answers 404 with an optional "suggestion"; an exhausted
// generator answers 503.
type api struct {
	roster     *roster.Roster
	dispatcher *command.Dispatcher
	rng        markov.Rand
}

func newAPI(r *roster.Roster, d *command.Dispatcher, rng markov.Rand) *api {
	return &api{roster: r, dispatcher: d, rng: rng}
}

func (h *api) register(mux *http.ServeMux) {
	mux.HandleFunc("GET /characters", h.characters)
	mux.HandleFunc("GET /characters/{name}/quote", h.quote)
}

type charactersResponse struct {
	Characters []string `json:"characters"`
}

type quoteResponse struct {
	Character string `json:"character"`
	Text      string `json:"text"`
	Attempts  int    `json:"attempts"`
}

type errorResponse struct {
	Error      string `json:"error"`
	Suggestion string `json:"suggestion,omitempty"`
}

func (h *api) characters(w http.ResponseWriter, _ *http.Request) {
	names := h.roster.Names()
	if names == nil {
		names = []string{}
	}
	writeJSON(w, http.StatusOK, charactersResponse{Characters: names})
}

func (h *api) quote(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	c, s, err := h.roster.Generate(r.Context(), name, h.rng)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, quoteResponse{
			Character: c.Name,
			Text:      command.FormatReply(s.String()),
			Attempts:  s.Attempts,
		})
	case errors.Is(err, roster.ErrUnknownCharacter):
		resp := errorResponse{Error: "unknown character"}
		if sug, ok := h.dispatcher.Suggest(name); ok {
			resp.Suggestion = sug
		}
		writeJSON(w, http.StatusNotFound, resp)
	case errors.Is(err, markov.ErrNoSentence):
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "no sentence generated"})
	default:
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "generation failed"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("app: write response", "err", err)
	}
}
