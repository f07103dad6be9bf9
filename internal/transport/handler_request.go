package transport

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/gatehouse-io/gatehouse/internal/idempotency"
	"github.com/gatehouse-io/gatehouse/model"
	"github.com/gatehouse-io/gatehouse/observability"
	"github.com/gatehouse-io/gatehouse/store"
)

func handleRequestCreate(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := model.MustUserContext(r.Context())
		definitionID := chi.URLParam(r, "definitionID")

		var body struct {
			PayloadKind string         `json:"payload_kind"`
			Payload     map[string]any `json:"payload"`
		}
		if err := decodeBody(r, &body); err != nil {
			WriteError(w, err)
			return
		}

		eng, err := deps.Registry.Resolve(definitionID, body.PayloadKind)
		if err != nil {
			WriteError(w, err)
			return
		}

		req := &model.RequestInstance{
			DefinitionID: definitionID,
			Payload:      body.Payload,
		}
		if err := eng.Create(r.Context(), req, user); err != nil {
			WriteError(w, err)
			return
		}
		if err := deps.Store.Create(r.Context(), req); err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusCreated, req)
	}
}

func handleActionExecute(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := model.MustUserContext(r.Context())
		requestID := chi.URLParam(r, "requestID")
		actionName := chi.URLParam(r, "actionName")

		var body struct {
			Payload map[string]any `json:"payload"`
		}
		if err := decodeBody(r, &body); err != nil {
			WriteError(w, err)
			return
		}

		req, err := deps.Store.Get(r.Context(), requestID)
		if err != nil {
			WriteError(w, err)
			return
		}

		eng, ok := deps.Registry.Lookup(req.DefinitionID)
		if !ok {
			WriteError(w, model.NewNotFoundError("definition "+req.DefinitionID+" not found"))
			return
		}

		// Replay detection: a repeated key with the same input returns the
		// cached result without touching the engine.
		var idemKey, idemHash string
		if key := r.Header.Get("X-Idempotency-Key"); key != "" && deps.Idempotency != nil {
			idemKey = idempotency.FormatKey(req.DefinitionID, key)
			idemHash = idempotency.HashInput(actionName, body.Payload)
			cached, found, err := deps.Idempotency.Check(r.Context(), idemKey, idemHash)
			if err != nil {
				WriteError(w, err)
				return
			}
			if found {
				WriteJSON(w, http.StatusOK, cached)
				return
			}
		}

		result, err := eng.ExecuteAction(r.Context(), req, actionName, user, body.Payload)
		if err != nil {
			WriteError(w, err)
			return
		}
		if err := deps.Store.Update(r.Context(), result); err != nil {
			WriteError(w, err)
			return
		}

		if idemKey != "" {
			ttl := deps.Config.Idempotency.DefaultTTL
			if err := deps.Idempotency.Save(r.Context(), idemKey, idemHash, result, ttl); err != nil {
				// The action already committed; a failed cache write only
				// costs replay protection for this key.
				observability.LoggerFrom(r.Context(), zap.NewNop()).Warn(
					"idempotency save failed", zap.Error(err))
			}
		}
		WriteJSON(w, http.StatusOK, result)
	}
}

func handleRequestGet(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, err := deps.Store.Get(r.Context(), chi.URLParam(r, "requestID"))
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, req)
	}
}

func handleRequestActions(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := model.MustUserContext(r.Context())

		req, err := deps.Store.Get(r.Context(), chi.URLParam(r, "requestID"))
		if err != nil {
			WriteError(w, err)
			return
		}
		eng, ok := deps.Registry.Lookup(req.DefinitionID)
		if !ok {
			WriteError(w, model.NewNotFoundError("definition "+req.DefinitionID+" not found"))
			return
		}

		actions, err := eng.AvailableActions(req, user)
		if err != nil {
			WriteError(w, err)
			return
		}
		summaries := make([]actionSummary, 0, len(actions))
		for _, a := range actions {
			summaries = append(summaries, actionSummary{Name: a.Name, NextState: a.NextState})
		}
		WriteJSON(w, http.StatusOK, map[string]any{
			"request_id": req.ID,
			"state":      req.CurrentState,
			"actions":    summaries,
		})
	}
}

func handleRequestHistory(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		history, err := deps.Store.GetHistory(r.Context(), chi.URLParam(r, "requestID"))
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, map[string]any{"history": history})
	}
}

func handleRequestList(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		filters := store.RequestFilters{
			DefinitionID: q.Get("definition_id"),
			Status:       q.Get("status"),
			Limit:        queryInt(q.Get("limit")),
			Offset:       queryInt(q.Get("offset")),
		}

		requests, err := deps.Store.List(r.Context(), filters)
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, map[string]any{"requests": requests})
	}
}

// decodeBody decodes a JSON request body. An empty body is accepted; several
// endpoints take all their input from the URL.
func decodeBody(r *http.Request, v any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return model.NewBadRequestError("invalid JSON body")
	}
	return nil
}

func queryInt(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
