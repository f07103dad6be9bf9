package transport

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/gatehouse-io/gatehouse/engine"
	"github.com/gatehouse-io/gatehouse/model"
)

// definitionSummary is the read-model projection of a Definition returned by
// the definition endpoints. Hook and rule bindings are code, not data, so
// only the declarative shape is exposed.
type definitionSummary struct {
	ID          string         `json:"id"`
	PayloadKind string         `json:"payload_kind,omitempty"`
	SourceFile  string         `json:"source_file,omitempty"`
	Checksum    string         `json:"checksum,omitempty"`
	States      []stateSummary `json:"states"`
}

type stateSummary struct {
	Name    string          `json:"name"`
	Type    string          `json:"type"`
	Actions []actionSummary `json:"actions,omitempty"`
}

type actionSummary struct {
	Name      string `json:"name"`
	NextState string `json:"next_state,omitempty"`
	IsAuto    bool   `json:"is_auto,omitempty"`
}

func summarize(def *model.Definition) definitionSummary {
	summary := definitionSummary{
		ID:          def.ID,
		PayloadKind: def.PayloadKind,
		SourceFile:  def.SourceFile,
		Checksum:    def.Checksum,
		States:      make([]stateSummary, 0, len(def.States)),
	}
	for _, s := range def.States {
		ss := stateSummary{Name: s.Name, Type: string(s.Type)}
		for _, a := range s.Actions {
			ss.Actions = append(ss.Actions, actionSummary{
				Name:      a.Name,
				NextState: a.NextState,
				IsAuto:    a.IsAuto,
			})
		}
		summary.States = append(summary.States, ss)
	}
	return summary
}

func handleDefinitionList(registry *engine.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		ids := registry.IDs()
		summaries := make([]definitionSummary, 0, len(ids))
		for _, id := range ids {
			if e, ok := registry.Lookup(id); ok {
				summaries = append(summaries, summarize(e.Definition()))
			}
		}
		WriteJSON(w, http.StatusOK, map[string]any{"definitions": summaries})
	}
}

func handleDefinitionGet(registry *engine.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "definitionID")
		e, ok := registry.Lookup(id)
		if !ok {
			WriteError(w, model.NewNotFoundError("definition "+id+" not found"))
			return
		}
		WriteJSON(w, http.StatusOK, summarize(e.Definition()))
	}
}
