package session

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envelope(data any) []byte {
	raw, _ := json.Marshal(map[string]any{"data": data})
	return raw
}

func TestHTTPTransportSaveProgress(t *testing.T) {
	var got SaveRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/sessions/progress", r.URL.Path)
		require.Equal(t, "Bearer tok-1", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write(envelope(SaveResponse{SessionID: "sess-7"}))
	}))
	defer srv.Close()

	tr := NewHTTPTransport(srv.URL, "tok-1", zerolog.Nop())
	resp, err := tr.SaveProgress(context.Background(), &SaveRequest{
		UserID:   "user-1",
		ExamKind: KindTimed,
		Status:   StatusInProgress,
	})
	require.NoError(t, err)
	assert.Equal(t, "sess-7", resp.SessionID)
	assert.Equal(t, "user-1", got.UserID)
}

func TestHTTPTransportFetchSession(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/sessions/resume", r.URL.Path)
		require.Equal(t, "user-1", r.URL.Query().Get("userId"))
		w.Write(envelope(map[string]any{
			"found": true,
			"session": map[string]any{
				"sessionId": "sess-7",
				"examKind":  "timed",
				"answers":   []any{nil, "B"},
			},
		}))
	}))
	defer srv.Close()

	tr := NewHTTPTransport(srv.URL, "", zerolog.Nop())
	resp, err := tr.FetchSession(context.Background(), "user-1")
	require.NoError(t, err)
	require.True(t, resp.Found)
	require.NotNil(t, resp.Session)
	assert.Equal(t, "sess-7", resp.Session.SessionID)
	assert.Equal(t, KindTimed, resp.Session.ExamKind)
	assert.JSONEq(t, `[null, "B"]`, string(resp.Session.Answers))
}

func TestHTTPTransportServerRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"data": null, "error": {"code": "VALIDATION_ERROR", "message": "bad payload"}}`))
	}))
	defer srv.Close()

	tr := NewHTTPTransport(srv.URL, "", zerolog.Nop())
	_, err := tr.SaveProgress(context.Background(), &SaveRequest{})
	require.Error(t, err)

	var terr *TransportError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, "VALIDATION_ERROR", terr.Code)
	assert.Equal(t, http.StatusBadRequest, terr.StatusCode)
}

func TestHTTPTransportFinalize(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/sessions/finalize", r.URL.Path)
		var req FinalizeRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.True(t, req.Final)
		w.Write(envelope(FinalizeResponse{
			SessionID: req.SessionID,
			Results:   ExamResults{Correct: 8, Incorrect: 2, Score: 80},
		}))
	}))
	defer srv.Close()

	tr := NewHTTPTransport(srv.URL, "", zerolog.Nop())
	resp, err := tr.Finalize(context.Background(), &FinalizeRequest{
		SaveRequest: SaveRequest{SessionID: "sess-7", Status: StatusCompleted},
		Final:       true,
	})
	require.NoError(t, err)
	assert.Equal(t, "sess-7", resp.SessionID)
	assert.Equal(t, 80.0, resp.Results.Score)
}
