//go:build e2e
// +build e2e

package e2e

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/joho/godotenv"
)

const defaultBaseURL = "http://localhost:8080/api/v1"

var (
	baseURL   string
	userEmail string
	userToken string
	sessionID string
)

func TestMain(m *testing.M) {
	_ = godotenv.Load("../../.env")

	baseURL = os.Getenv("BASE_URL")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	userEmail = fmt.Sprintf("e2e_%d@example.com", time.Now().UnixNano())

	os.Exit(m.Run())
}

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func call(t *testing.T, method, path string, body any, out any) int {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}

	req, err := http.NewRequest(method, baseURL+path, &buf)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if userToken != "" {
		req.Header.Set("Authorization", "Bearer "+userToken)
	}

	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer res.Body.Close()

	var env envelope
	if err := json.NewDecoder(res.Body).Decode(&env); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	if env.Error != nil && res.StatusCode < 400 {
		t.Fatalf("unexpected error body: %s", env.Error.Code)
	}
	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			t.Fatalf("decode data: %v", err)
		}
	}
	return res.StatusCode
}

func progressEnvelope(sessionID string, status string, selected string) map[string]any {
	return map[string]any{
		"sessionId": sessionID,
		"userId":    "1",
		"examKind":  "timed",
		"questions": []map[string]any{
			{"id": "q1", "question": "2+2?", "options": []string{"3", "4", "5"}, "answer": "4"},
		},
		"answers": []map[string]any{
			{
				"questionId":     "q1",
				"selectedAnswer": selected,
				"markedAsDoubt":  false,
				"questionData": map[string]any{
					"questionId":    "q1",
					"question":      "2+2?",
					"options":       []string{"3", "4", "5", "-", "-"},
					"correctAnswer": "4",
				},
			},
		},
		"timeLeftSeconds":      120,
		"totalTimeSeconds":     300,
		"currentQuestionIndex": 0,
		"doubtFlags":           map[string]bool{},
		"status":               status,
	}
}

func Test01_Register(t *testing.T) {
	var out struct {
		Token string `json:"token"`
	}
	code := call(t, http.MethodPost, "/auth/register", map[string]string{
		"email":    userEmail,
		"name":     "E2E User",
		"password": "password123",
	}, &out)

	if code != http.StatusCreated {
		t.Fatalf("register: got status %d", code)
	}
	if out.Token == "" {
		t.Fatal("register: empty token")
	}
	userToken = out.Token
}

func Test02_FirstSaveAssignsID(t *testing.T) {
	var out struct {
		SessionID string `json:"sessionId"`
	}
	code := call(t, http.MethodPost, "/sessions/progress", progressEnvelope("", "in_progress", ""), &out)

	if code != http.StatusOK {
		t.Fatalf("first save: got status %d", code)
	}
	if out.SessionID == "" {
		t.Fatal("first save: no session id assigned")
	}
	sessionID = out.SessionID
}

func Test03_SubsequentSaveKeepsID(t *testing.T) {
	var out struct {
		SessionID string `json:"sessionId"`
	}
	code := call(t, http.MethodPost, "/sessions/progress", progressEnvelope(sessionID, "in_progress", "4"), &out)

	if code != http.StatusOK {
		t.Fatalf("save: got status %d", code)
	}
	if out.SessionID != sessionID {
		t.Fatalf("save: session id changed from %s to %s", sessionID, out.SessionID)
	}
}

func Test04_Resume(t *testing.T) {
	var out struct {
		Found   bool `json:"found"`
		Session *struct {
			SessionID string  `json:"sessionId"`
			ExamKind  string  `json:"examKind"`
			TimeLeft  float64 `json:"timeLeftSeconds"`
		} `json:"session"`
	}
	code := call(t, http.MethodGet, "/sessions/resume", nil, &out)

	if code != http.StatusOK {
		t.Fatalf("resume: got status %d", code)
	}
	if !out.Found || out.Session == nil {
		t.Fatal("resume: session not found")
	}
	if out.Session.SessionID != sessionID {
		t.Fatalf("resume: wrong session %s", out.Session.SessionID)
	}
}

func Test05_FinalizeIsIdempotent(t *testing.T) {
	body := progressEnvelope(sessionID, "completed", "4")
	body["final"] = true

	var first struct {
		SessionID string `json:"sessionId"`
		Results   struct {
			Correct int     `json:"correct"`
			Score   float64 `json:"score"`
		} `json:"results"`
	}
	code := call(t, http.MethodPost, "/sessions/finalize", body, &first)
	if code != http.StatusOK {
		t.Fatalf("finalize: got status %d", code)
	}
	if first.Results.Correct != 1 || first.Results.Score != 100 {
		t.Fatalf("finalize: unexpected results %+v", first.Results)
	}

	// Second finalize returns the stored result without reopening the row.
	var second struct {
		Results struct {
			Score float64 `json:"score"`
		} `json:"results"`
	}
	code = call(t, http.MethodPost, "/sessions/finalize", body, &second)
	if code != http.StatusOK {
		t.Fatalf("repeat finalize: got status %d", code)
	}
	if second.Results.Score != first.Results.Score {
		t.Fatalf("repeat finalize: score changed %f -> %f", first.Results.Score, second.Results.Score)
	}
}

func Test06_ResumeAfterFinalizeFindsNothing(t *testing.T) {
	var out struct {
		Found bool `json:"found"`
	}
	code := call(t, http.MethodGet, "/sessions/resume", nil, &out)

	if code != http.StatusOK {
		t.Fatalf("resume: got status %d", code)
	}
	if out.Found {
		t.Fatal("resume: finalized session should not resume")
	}
}
