package http

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"exam-attempt-service/internal/app"
	"exam-attempt-service/internal/domain"
	"exam-attempt-service/internal/infra/memory"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	service := app.NewAttemptService(
		memory.NewAttemptRepository(),
		memory.NewStaticContentStore(testPapers()),
		memory.NewAllowAllGate(),
		domain.ScoringConfig{MarksPerCorrect: 1},
	)
	mux := http.NewServeMux()
	NewHandler(service).Register(mux)
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func testPapers() map[string]domain.Paper {
	return map[string]domain.Paper{
		"paper-1": {
			ID:    "paper-1",
			Title: "Mock Paper 1",
			Questions: []domain.Question{
				{
					ID:   "q1",
					Text: "What is 2 + 2?",
					Options: []domain.Option{
						{Text: "3"},
						{Text: "4", Correct: true},
						{Text: "5"},
						{Text: "22"},
					},
				},
				{
					ID:   "q2",
					Text: "Red planet?",
					Options: []domain.Option{
						{Text: "Venus"},
						{Text: "Mars", Correct: true},
					},
				},
			},
		},
	}
}

func doJSON(t *testing.T, method, url, userID string, body interface{}, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if userID != "" {
		req.Header.Set("X-User-ID", userID)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer resp.Body.Close()
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp, buf.Bytes()
}

func TestAttemptLifecycleOverHTTP(t *testing.T) {
	server := newTestServer(t)

	// Identity is mandatory.
	resp, _ := doJSON(t, "POST", server.URL+"/attempts/start", "", map[string]any{"paperId": "paper-1"}, nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without identity, got %d", resp.StatusCode)
	}

	resp, body := doJSON(t, "POST", server.URL+"/attempts/start", "u1", map[string]any{"paperId": "paper-1"}, nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", resp.StatusCode, body)
	}
	if strings.Contains(string(body), "correctIndex") {
		t.Fatalf("start response leaks correctIndex: %s", body)
	}
	var started domain.StartResult
	if err := json.Unmarshal(body, &started); err != nil {
		t.Fatalf("unmarshal start: %v", err)
	}

	// Duplicate start conflicts.
	resp, _ = doJSON(t, "POST", server.URL+"/attempts/start", "u1", map[string]any{"paperId": "paper-1"}, nil)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 on duplicate start, got %d", resp.StatusCode)
	}

	base := server.URL + "/attempts/" + started.AttemptID

	// Unknown fields are rejected before domain logic runs.
	resp, _ = doJSON(t, "POST", base+"/answers", "u1", map[string]any{"questionId": "q1", "selectedIndex": 1, "bogus": true}, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown field, got %d", resp.StatusCode)
	}

	resp, _ = doJSON(t, "POST", base+"/answers", "u1", map[string]any{"questionId": "q1", "selectedIndex": 7}, nil)
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for out-of-range index, got %d", resp.StatusCode)
	}

	resp, _ = doJSON(t, "POST", base+"/answers", "u1", map[string]any{"questionId": "q1", "selectedIndex": 1}, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 for valid answer, got %d", resp.StatusCode)
	}

	// Non-owners cannot read; admins can.
	resp, _ = doJSON(t, "GET", base, "u2", nil, nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 for non-owner, got %d", resp.StatusCode)
	}
	resp, _ = doJSON(t, "GET", base, "u2", nil, map[string]string{"X-User-Role": "admin"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 for admin read, got %d", resp.StatusCode)
	}

	resp, body = doJSON(t, "POST", base+"/submit", "u1", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 on submit, got %d: %s", resp.StatusCode, body)
	}
	var breakdown domain.ScoreBreakdown
	if err := json.Unmarshal(body, &breakdown); err != nil {
		t.Fatalf("unmarshal breakdown: %v", err)
	}
	if breakdown.Score != 1 || breakdown.TotalQuestions != 2 || breakdown.Percent != 50 {
		t.Fatalf("unexpected breakdown: %+v", breakdown)
	}

	resp, _ = doJSON(t, "POST", base+"/submit", "u1", nil, nil)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 on resubmit, got %d", resp.StatusCode)
	}

	// The submitted view now reveals the breakdown.
	resp, body = doJSON(t, "GET", base, "u1", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 on get, got %d", resp.StatusCode)
	}
	if !strings.Contains(string(body), "correctIndex") {
		t.Fatalf("submitted view should include correctIndex: %s", body)
	}

	resp, body = doJSON(t, "GET", server.URL+"/attempts?paper=paper-1", "u1", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 on list, got %d", resp.StatusCode)
	}
	var summaries []domain.AttemptSummary
	if err := json.Unmarshal(body, &summaries); err != nil {
		t.Fatalf("unmarshal summaries: %v", err)
	}
	if len(summaries) != 1 || summaries[0].Status != domain.StatusSubmitted {
		t.Fatalf("unexpected summaries: %+v", summaries)
	}
}

func TestErrorStatusMapping(t *testing.T) {
	server := newTestServer(t)

	resp, _ := doJSON(t, "POST", server.URL+"/attempts/start", "u1", map[string]any{"paperId": "no such paper"}, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed id, got %d", resp.StatusCode)
	}

	resp, _ = doJSON(t, "POST", server.URL+"/attempts/start", "u1", map[string]any{"paperId": "paper-x"}, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown paper, got %d", resp.StatusCode)
	}

	resp, _ = doJSON(t, "GET", server.URL+"/attempts/7c2f8a44-1a63-4a7e-9f1f-52d0b77(bad)", "u1", nil, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed attempt id, got %d", resp.StatusCode)
	}

	resp, _ = doJSON(t, "GET", server.URL+"/attempts/7c2f8a44-1a63-4a7e-9f1f-52d0b7700001", "u1", nil, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown attempt, got %d", resp.StatusCode)
	}
}
