package http_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	internal_http "github.com/alhafibarefoot/HelpDesk-sub001/internal/http"
	"github.com/alhafibarefoot/HelpDesk-sub001/internal/log"
	"github.com/alhafibarefoot/HelpDesk-sub001/pkg/engine"
	"github.com/alhafibarefoot/HelpDesk-sub001/pkg/models"
	"github.com/alhafibarefoot/HelpDesk-sub001/pkg/storage"
	"github.com/stretchr/testify/assert"
)

func newServer(store storage.Store) *httptest.Server {
	eng := engine.NewEngine(store, storage.NewDirectory(store), log.GetLogger())
	return httptest.NewServer(internal_http.NewHandler(store, eng))
}

func postJSON(t *testing.T, srv *httptest.Server, path string, payload string) *http.Response {
	t.Helper()
	req, err := http.NewRequest("POST", srv.URL+path, bytes.NewBufferString(payload))
	assert.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := srv.Client().Do(req)
	assert.NoError(t, err)
	return resp
}

const approvalDefJSON = `{
	"name": "leave-request",
	"nodes": [
		{"id": "start", "kind": "start"},
		{"id": "approve", "kind": "approval", "approval": {"assignee_rule": "team_lead", "sla_hours": 24}},
		{"id": "granted", "kind": "end", "end": {"outcome": "COMPLETED"}},
		{"id": "denied", "kind": "end", "end": {"outcome": "REJECTED"}}
	],
	"edges": [
		{"source": "start", "target": "approve"},
		{"source": "approve", "target": "granted", "condition": {"field": "outcome", "op": "eq", "value": "approved"}},
		{"source": "approve", "target": "denied"}
	]
}`

// createPublishedDefinition drives the definition lifecycle over the API and
// returns the new ID.
func createPublishedDefinition(t *testing.T, srv *httptest.Server) int64 {
	t.Helper()
	resp := postJSON(t, srv, "/definitions", approvalDefJSON)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	var created struct {
		ID int64 `json:"id"`
	}
	assert.NoError(t, json.NewDecoder(resp.Body).Decode(&created))

	resp = postJSON(t, srv, fmt.Sprintf("/definitions/%d/publish", created.ID), "")
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	return created.ID
}

func submitRequest(t *testing.T, srv *httptest.Server, defID int64) string {
	t.Helper()
	resp := postJSON(t, srv, "/requests",
		fmt.Sprintf(`{"definition_id": %d, "requester_id": "u-100", "form_data": {"days": 3}}`, defID))
	defer resp.Body.Close()
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	var submitted struct {
		ID string `json:"id"`
	}
	assert.NoError(t, json.NewDecoder(resp.Body).Decode(&submitted))
	assert.NotEmpty(t, submitted.ID)
	return submitted.ID
}

func getRequest(t *testing.T, srv *httptest.Server, id string) (models.RequestInstance, []models.StepInstance) {
	t.Helper()
	resp, err := srv.Client().Get(srv.URL + "/requests/" + id)
	assert.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var view struct {
		Request models.RequestInstance `json:"request"`
		Steps   []models.StepInstance  `json:"steps"`
	}
	assert.NoError(t, json.NewDecoder(resp.Body).Decode(&view))
	return view.Request, view.Steps
}

func TestServer(t *testing.T) {
	t.Run("HealthCheck", func(t *testing.T) {
		srv := newServer(storage.NewMockStore())
		defer srv.Close()

		resp, err := srv.Client().Get(srv.URL + "/health")
		assert.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		body, _ := io.ReadAll(resp.Body)
		assert.Equal(t, "HelpDesk server is running", string(body))
	})

	t.Run("CreateAndListDefinitions", func(t *testing.T) {
		srv := newServer(storage.NewMockStore())
		defer srv.Close()

		createPublishedDefinition(t, srv)

		resp, err := srv.Client().Get(srv.URL + "/definitions")
		assert.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		var defs []models.WorkflowDefinition
		assert.NoError(t, json.NewDecoder(resp.Body).Decode(&defs))
		assert.Len(t, defs, 1)
		assert.Equal(t, "leave-request", defs[0].Name)
		assert.Equal(t, models.PublishedDefinitionStatus, defs[0].Status)
	})

	t.Run("CreateDefinitionRejectsInvalidGraph", func(t *testing.T) {
		srv := newServer(storage.NewMockStore())
		defer srv.Close()

		// no end node
		resp := postJSON(t, srv, "/definitions", `{
			"name": "broken",
			"nodes": [{"id": "start", "kind": "start"}],
			"edges": []
		}`)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		body, _ := io.ReadAll(resp.Body)
		assert.Contains(t, string(body), "invalid workflow graph")
	})

	t.Run("PublishUnknownDefinition", func(t *testing.T) {
		srv := newServer(storage.NewMockStore())
		defer srv.Close()

		resp := postJSON(t, srv, "/definitions/999/publish", "")
		defer resp.Body.Close()
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("SubmitAdvanceAndInspect", func(t *testing.T) {
		srv := newServer(storage.NewMockStore())
		defer srv.Close()

		defID := createPublishedDefinition(t, srv)
		reqID := submitRequest(t, srv, defID)

		req, steps := getRequest(t, srv, reqID)
		assert.Equal(t, models.RunningRequestStatus, req.Status)
		assert.Len(t, steps, 2) // start + pending approval
		assert.Equal(t, "approve", steps[1].NodeID)
		assert.Equal(t, models.PendingStepStatus, steps[1].Status)
		assert.Equal(t, "team_lead", *steps[1].AssigneeRole)

		resp := postJSON(t, srv, "/requests/"+reqID+"/advance",
			`{"node_id": "approve", "outcome": "approved"}`)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		req, steps = getRequest(t, srv, reqID)
		assert.Equal(t, models.CompletedRequestStatus, req.Status)
		assert.Len(t, steps, 3)
		assert.Equal(t, "granted", steps[2].NodeID)
	})

	t.Run("RejectionOutcomeRoutesToDeniedEnd", func(t *testing.T) {
		srv := newServer(storage.NewMockStore())
		defer srv.Close()

		defID := createPublishedDefinition(t, srv)
		reqID := submitRequest(t, srv, defID)

		resp := postJSON(t, srv, "/requests/"+reqID+"/advance",
			`{"node_id": "approve", "outcome": "rejected"}`)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		req, _ := getRequest(t, srv, reqID)
		assert.Equal(t, models.RejectedRequestStatus, req.Status)
	})

	t.Run("CancelRequest", func(t *testing.T) {
		srv := newServer(storage.NewMockStore())
		defer srv.Close()

		defID := createPublishedDefinition(t, srv)
		reqID := submitRequest(t, srv, defID)

		resp := postJSON(t, srv, "/requests/"+reqID+"/cancel", "")
		defer resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		req, _ := getRequest(t, srv, reqID)
		assert.Equal(t, models.CancelledRequestStatus, req.Status)
	})

	t.Run("GetUnknownRequest", func(t *testing.T) {
		srv := newServer(storage.NewMockStore())
		defer srv.Close()

		resp, err := srv.Client().Get(srv.URL + "/requests/missing")
		assert.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("SubmitRequiresPublishedDefinition", func(t *testing.T) {
		srv := newServer(storage.NewMockStore())
		defer srv.Close()

		resp := postJSON(t, srv, "/definitions", approvalDefJSON)
		var created struct {
			ID int64 `json:"id"`
		}
		assert.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
		resp.Body.Close()

		resp = postJSON(t, srv, "/requests",
			fmt.Sprintf(`{"definition_id": %d, "requester_id": "u-100"}`, created.ID))
		defer resp.Body.Close()
		assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	})
}
