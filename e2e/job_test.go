package e2e

import (
	"net/http"
	"testing"

	"github.com/google/uuid"

	"github.com/genresorter/api/internal/middleware"
)

func TestSnapshot_ReuseAndRefresh(t *testing.T) {
	ta := setupApp(t, nil)

	resp := doSessionRequest(t, ta.app, http.MethodPost, "/api/library/snapshot", "")
	assertStatus(t, resp, http.StatusOK)
	first := parseJSON(t, resp)
	if first["reused"] != false || first["trackCount"] != float64(4) {
		t.Errorf("unexpected first snapshot: %v", first)
	}
	if _, ok := first["fetchedAt"]; !ok {
		t.Error("expected 'fetchedAt' field in response")
	}

	resp = doSessionRequest(t, ta.app, http.MethodPost, "/api/library/snapshot", "")
	second := parseJSON(t, resp)
	if second["reused"] != true || second["jobId"] != first["jobId"] {
		t.Errorf("expected reuse of %v, got %v", first["jobId"], second)
	}

	resp = doSessionRequest(t, ta.app, http.MethodPost, "/api/library/snapshot?refresh=true", "")
	third := parseJSON(t, resp)
	if third["reused"] != false || third["jobId"] == first["jobId"] {
		t.Errorf("expected a fresh snapshot, got %v", third)
	}

	// Another session never sees this one's snapshot.
	other, err := doRequest(ta.app, http.MethodPost, "/api/library/snapshot", "", map[string]string{
		middleware.HeaderSessionID: "other-session",
	})
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if body := parseJSON(t, other); body["reused"] != false {
		t.Errorf("expected independent session, got %v", body)
	}
}

func TestClearSession(t *testing.T) {
	ta := setupApp(t, nil)
	first := ta.snapshot(t)

	resp := doSessionRequest(t, ta.app, http.MethodDelete, "/api/session", "")
	assertStatus(t, resp, http.StatusNoContent)
	resp.Body.Close()

	if second := ta.snapshot(t); second == first {
		t.Error("expected a new snapshot after clearing the session")
	}
}

func TestJobLifecycle(t *testing.T) {
	ta := setupApp(t, nil)
	id := ta.snapshot(t)

	resp := doSessionRequest(t, ta.app, http.MethodGet, "/api/jobs/"+id, "")
	assertStatus(t, resp, http.StatusOK)
	body := parseJSON(t, resp)
	if body["status"] != "pending" || body["progress"] != float64(0) {
		t.Errorf("expected pending/0, got %v", body)
	}

	resp = doSessionRequest(t, ta.app, http.MethodGet, "/api/jobs/"+id+"/genres", "")
	assertStatus(t, resp, http.StatusConflict)
	assertErrorCode(t, parseJSON(t, resp), "RESULT_NOT_READY")

	resp = doSessionRequest(t, ta.app, http.MethodPost, "/api/jobs/start", `{"jobId":"`+id+`"}`)
	assertStatus(t, resp, http.StatusAccepted)
	body = parseJSON(t, resp)
	if body["jobId"] != id || body["status"] != "running" {
		t.Errorf("unexpected start response: %v", body)
	}
	ta.local.Wait()

	resp = doSessionRequest(t, ta.app, http.MethodPost, "/api/jobs/start", `{"jobId":"`+id+`"}`)
	assertStatus(t, resp, http.StatusConflict)
	assertErrorCode(t, parseJSON(t, resp), "ALREADY_STARTED")

	resp = doSessionRequest(t, ta.app, http.MethodGet, "/api/jobs/"+id, "")
	body = parseJSON(t, resp)
	if body["status"] != "completed" || body["progress"] != float64(100) {
		t.Errorf("expected completed/100, got %v", body)
	}

	resp = doSessionRequest(t, ta.app, http.MethodGet, "/api/jobs/"+id+"/genres", "")
	assertStatus(t, resp, http.StatusOK)
	body = parseJSON(t, resp)
	genres, _ := body["genres"].(map[string]interface{})
	count, _ := body["count"].(map[string]interface{})
	if len(genres) != 3 || len(count) != 3 {
		t.Fatalf("expected 3 genres, got %v", body)
	}
	if count["rock"] != float64(3) || count["jazz"] != float64(1) || count["hip hop"] != float64(1) {
		t.Errorf("unexpected counts: %v", count)
	}
	if genres["hip hop"] != "Hip Hop" {
		t.Errorf("expected display name 'Hip Hop', got %v", genres["hip hop"])
	}
}

func TestJob_Errors(t *testing.T) {
	ta := setupApp(t, nil)
	unknown := uuid.NewString()

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		status int
		code   string
	}{
		{"status of unknown job", http.MethodGet, "/api/jobs/" + unknown, "", http.StatusNotFound, "NOT_FOUND"},
		{"genres of unknown job", http.MethodGet, "/api/jobs/" + unknown + "/genres", "", http.StatusNotFound, "NOT_FOUND"},
		{"start unknown job", http.MethodPost, "/api/jobs/start", `{"jobId":"` + unknown + `"}`, http.StatusNotFound, "NOT_FOUND"},
		{"malformed job id", http.MethodGet, "/api/jobs/not-a-uuid", "", http.StatusBadRequest, "VALIDATION_ERROR"},
		{"start without job id", http.MethodPost, "/api/jobs/start", `{}`, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"start with bad body", http.MethodPost, "/api/jobs/start", `{`, http.StatusBadRequest, "VALIDATION_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := doSessionRequest(t, ta.app, tt.method, tt.path, tt.body)
			assertStatus(t, resp, tt.status)
			assertErrorCode(t, parseJSON(t, resp), tt.code)
		})
	}
}

func TestJob_ResolverFailure(t *testing.T) {
	ta := setupApp(t, nil)
	ta.provider.FailResolve = errProviderDown

	id := ta.snapshot(t)
	resp := doSessionRequest(t, ta.app, http.MethodPost, "/api/jobs/start", `{"jobId":"`+id+`"}`)
	assertStatus(t, resp, http.StatusAccepted)
	resp.Body.Close()
	ta.local.Wait()

	resp = doSessionRequest(t, ta.app, http.MethodGet, "/api/jobs/"+id, "")
	body := parseJSON(t, resp)
	if body["status"] != "failed" || body["error"] == nil {
		t.Errorf("expected failed job with error, got %v", body)
	}

	resp = doSessionRequest(t, ta.app, http.MethodGet, "/api/jobs/"+id+"/genres", "")
	assertStatus(t, resp, http.StatusUnprocessableEntity)
	assertErrorCode(t, parseJSON(t, resp), "JOB_FAILED")
}
