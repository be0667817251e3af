package session

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"
)

// SaveRequest is the progress-save envelope. The same envelope, plus the
// final marker, is sent to the finalize endpoint.
type SaveRequest struct {
	SessionID            string          `json:"sessionId,omitempty"`
	UserID               string          `json:"userId"`
	ExamKind             ExamKind        `json:"examKind"`
	Questions            []Question      `json:"questions"`
	Answers              []Answer        `json:"answers"`
	TimeLeftSeconds      int             `json:"timeLeftSeconds"`
	TotalTimeSeconds     int             `json:"totalTimeSeconds"`
	CurrentQuestionIndex int             `json:"currentQuestionIndex"`
	DoubtFlags           map[string]bool `json:"doubtFlags"`
	Status               Status          `json:"status"`
}

// SaveResponse carries the server-assigned session id.
type SaveResponse struct {
	SessionID string `json:"sessionId"`
}

// PersistedSession is the raw persisted record as the resume endpoint
// returns it. Answers and doubt flags stay raw: historical rows arrive in
// any of several shapes and the reconciler normalizes them.
type PersistedSession struct {
	SessionID            string          `json:"sessionId"`
	UserID               string          `json:"userId"`
	ExamKind             ExamKind        `json:"examKind"`
	Questions            []Question      `json:"questions"`
	Answers              json.RawMessage `json:"answers"`
	DoubtFlags           json.RawMessage `json:"doubtFlags"`
	TimeLeftSeconds      *float64        `json:"timeLeftSeconds"`
	TotalTimeSeconds     *float64        `json:"totalTimeSeconds"`
	CurrentQuestionIndex *float64        `json:"currentQuestionIndex"`
	Status               Status          `json:"status"`
}

// FetchResponse is the resume-fetch result.
type FetchResponse struct {
	Found   bool              `json:"found"`
	Session *PersistedSession `json:"session,omitempty"`
}

// FinalizeRequest is the progress-save envelope with the final marker set.
type FinalizeRequest struct {
	SaveRequest
	Final bool `json:"final"`
}

// ExamResults is the server-computed score breakdown.
type ExamResults struct {
	Correct    int     `json:"correct"`
	Incorrect  int     `json:"incorrect"`
	Unanswered int     `json:"unanswered"`
	Score      float64 `json:"score"`
}

// FinalizeResponse is the finalize endpoint's result. The score inside is
// the only authoritative one; the engine never computes its own.
type FinalizeResponse struct {
	SessionID string      `json:"sessionId"`
	Results   ExamResults `json:"results"`
}

// Transport is the thin network boundary used by the save scheduler, the
// resume reconciler and the finalize protocol.
type Transport interface {
	SaveProgress(ctx context.Context, req *SaveRequest) (*SaveResponse, error)
	FetchSession(ctx context.Context, userID string) (*FetchResponse, error)
	Finalize(ctx context.Context, req *FinalizeRequest) (*FinalizeResponse, error)
}

// DefaultCallTimeout bounds a single network call. Timeouts are treated as
// recoverable: the dirty flag stays set for the next retry.
const DefaultCallTimeout = 15 * time.Second

// HTTPTransport talks JSON over HTTP to the session backend. Responses use
// the backend's envelope: {"data": ..., "error": {"code", "message"}}.
type HTTPTransport struct {
	baseURL string
	token   string
	hc      *http.Client
	log     zerolog.Logger
}

// NewHTTPTransport creates a transport against baseURL (e.g.
// "https://api.example.com/api/v1") authenticating with a bearer token.
func NewHTTPTransport(baseURL, token string, log zerolog.Logger) *HTTPTransport {
	return &HTTPTransport{
		baseURL: baseURL,
		token:   token,
		hc:      &http.Client{Timeout: DefaultCallTimeout},
		log:     log.With().Str("component", "transport").Logger(),
	}
}

type wireError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type wireEnvelope struct {
	Data  json.RawMessage `json:"data"`
	Error *wireError      `json:"error,omitempty"`
}

// TransportError is a server-side rejection (validation failure or similar),
// as opposed to a transient network failure.
type TransportError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("server rejected request: %s (%s, http %d)", e.Message, e.Code, e.StatusCode)
}

// SaveProgress persists one progress snapshot.
func (t *HTTPTransport) SaveProgress(ctx context.Context, req *SaveRequest) (*SaveResponse, error) {
	var resp SaveResponse
	if err := t.call(ctx, http.MethodPost, "/sessions/progress", req, &resp); err != nil {
		return nil, fmt.Errorf("save progress: %w", err)
	}
	return &resp, nil
}

// FetchSession retrieves the user's latest unfinished session, if any.
func (t *HTTPTransport) FetchSession(ctx context.Context, userID string) (*FetchResponse, error) {
	var resp FetchResponse
	path := "/sessions/resume?userId=" + url.QueryEscape(userID)
	if err := t.call(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, fmt.Errorf("fetch session: %w", err)
	}
	return &resp, nil
}

// Finalize closes the session; the server scores it.
func (t *HTTPTransport) Finalize(ctx context.Context, req *FinalizeRequest) (*FinalizeResponse, error) {
	var resp FinalizeResponse
	if err := t.call(ctx, http.MethodPost, "/sessions/finalize", req, &resp); err != nil {
		return nil, fmt.Errorf("finalize: %w", err)
	}
	return &resp, nil
}

func (t *HTTPTransport) call(ctx context.Context, method, path string, body, out any) error {
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, t.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if t.token != "" {
		req.Header.Set("Authorization", "Bearer "+t.token)
	}

	res, err := t.hc.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer res.Body.Close()

	var env wireEnvelope
	if err := json.NewDecoder(res.Body).Decode(&env); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}

	if env.Error != nil {
		return &TransportError{StatusCode: res.StatusCode, Code: env.Error.Code, Message: env.Error.Message}
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return &TransportError{StatusCode: res.StatusCode, Code: "HTTP_ERROR", Message: res.Status}
	}

	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("decode payload: %w", err)
		}
	}
	return nil
}
