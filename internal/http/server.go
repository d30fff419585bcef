package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/alhafibarefoot/HelpDesk-sub001/internal/log"
	"github.com/alhafibarefoot/HelpDesk-sub001/internal/service"
	"github.com/alhafibarefoot/HelpDesk-sub001/pkg/engine"
	"github.com/alhafibarefoot/HelpDesk-sub001/pkg/models"
	"github.com/alhafibarefoot/HelpDesk-sub001/pkg/storage"
	"github.com/pkg/errors"
)

// StartServer wires the HTTP API and blocks serving it.
func StartServer(port string, store storage.Store, eng *engine.Engine) error {
	log.GetLogger().Infof("Starting HelpDesk server on :%s", port)
	return http.ListenAndServe(":"+port, NewHandler(store, eng))
}

// NewHandler builds the API routes. Split from StartServer so tests can mount
// the handler on httptest servers.
func NewHandler(store storage.Store, eng *engine.Engine) http.Handler {
	svc := service.NewDefinitionService(store)
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", healthHandler)
	mux.HandleFunc("GET /definitions", listDefinitionsHTTP(svc))
	mux.HandleFunc("POST /definitions", createDefinitionHTTP(svc))
	mux.HandleFunc("POST /definitions/{id}/publish", publishDefinitionHTTP(svc))
	mux.HandleFunc("POST /requests", submitRequestHTTP(eng))
	mux.HandleFunc("GET /requests", listRequestsHTTP(store))
	mux.HandleFunc("GET /requests/{id}", getRequestHTTP(store))
	mux.HandleFunc("POST /requests/{id}/advance", advanceRequestHTTP(eng))
	mux.HandleFunc("POST /requests/{id}/cancel", cancelRequestHTTP(eng))
	return mux
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	fmt.Fprintf(w, "HelpDesk server is running")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.GetLogger().Errorf("Failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func statusFor(err error) int {
	if errors.Is(err, storage.ErrNotFound) {
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

func createDefinitionHTTP(svc *service.DefinitionService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var def models.WorkflowDefinition
		if err := json.NewDecoder(r.Body).Decode(&def); err != nil {
			writeError(w, http.StatusBadRequest, errors.Wrap(err, "decode definition"))
			return
		}
		id, err := svc.CreateDefinition(def)
		if err != nil {
			log.GetLogger().Errorf("Failed to create definition: %v", err)
			writeError(w, http.StatusBadRequest, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]int64{"id": id})
	}
}

func listDefinitionsHTTP(svc *service.DefinitionService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		defs, err := svc.ListDefinitions()
		if err != nil {
			log.GetLogger().Errorf("Failed to list definitions: %v", err)
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, defs)
	}
}

func publishDefinitionHTTP(svc *service.DefinitionService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, errors.New("invalid definition id"))
			return
		}
		if err := svc.PublishDefinition(id); err != nil {
			log.GetLogger().Errorf("Failed to publish definition %d: %v", id, err)
			writeError(w, statusFor(err), err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": string(models.PublishedDefinitionStatus)})
	}
}

type submitRequestBody struct {
	DefinitionID int64          `json:"definition_id"`
	RequesterID  string         `json:"requester_id"`
	FormData     map[string]any `json:"form_data"`
}

func submitRequestHTTP(eng *engine.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body submitRequestBody
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, errors.Wrap(err, "decode request"))
			return
		}
		if body.DefinitionID == 0 || body.RequesterID == "" {
			writeError(w, http.StatusBadRequest, errors.New("definition_id and requester_id are required"))
			return
		}
		id, err := eng.Submit(r.Context(), body.DefinitionID, body.RequesterID, body.FormData)
		if err != nil {
			log.GetLogger().Errorf("Failed to submit request: %v", err)
			writeError(w, statusFor(err), err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]string{"id": id})
	}
}

func listRequestsHTTP(store storage.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reqs, err := store.ListRequests()
		if err != nil {
			log.GetLogger().Errorf("Failed to list requests: %v", err)
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, reqs)
	}
}

// requestView is the detail payload: the request plus its step history and
// escalation trail.
type requestView struct {
	Request     models.RequestInstance    `json:"request"`
	Steps       []models.StepInstance     `json:"steps"`
	Escalations []models.EscalationRecord `json:"escalations,omitempty"`
}

func getRequestHTTP(store storage.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		req, err := store.GetRequest(id)
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		steps, err := store.ListSteps(id)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		escalations, err := store.ListEscalations(id)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, requestView{Request: req, Steps: steps, Escalations: escalations})
	}
}

type advanceRequestBody struct {
	NodeID      string         `json:"node_id"`
	Outcome     string         `json:"outcome"`
	FormUpdates map[string]any `json:"form_updates"`
}

func advanceRequestHTTP(eng *engine.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		var body advanceRequestBody
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, errors.Wrap(err, "decode advance"))
			return
		}
		if body.NodeID == "" {
			writeError(w, http.StatusBadRequest, errors.New("node_id is required"))
			return
		}
		if err := eng.AdvanceStep(r.Context(), id, body.NodeID, body.Outcome, body.FormUpdates); err != nil {
			log.GetLogger().Errorf("Failed to advance request %s at %s: %v", id, body.NodeID, err)
			writeError(w, statusFor(err), err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "advanced"})
	}
}

func cancelRequestHTTP(eng *engine.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		if err := eng.Cancel(r.Context(), id); err != nil {
			log.GetLogger().Errorf("Failed to cancel request %s: %v", id, err)
			writeError(w, statusFor(err), err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": string(models.CancelledRequestStatus)})
	}
}
