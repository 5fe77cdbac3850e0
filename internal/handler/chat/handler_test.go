package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/rasa-chat/backend/internal/model/chat"
	"github.com/zhouzirui/rasa-chat/backend/internal/service/session"
	"github.com/zhouzirui/rasa-chat/backend/internal/service/transport"
)

func setupRouter(client transport.Client) (*chi.Mux, *session.Registry) {
	sessions := session.NewRegistry(client)
	handler := New(sessions)

	r := chi.NewRouter()
	handler.RegisterRoutes(r)
	return r, sessions
}

func do(t *testing.T, r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	return resp
}

func decodeView(t *testing.T, resp *httptest.ResponseRecorder) chat.View {
	t.Helper()
	var view chat.View
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&view))
	return view
}

func echo(reply string) transport.Func {
	return func(context.Context, string, string) ([]chat.Fragment, error) {
		return []chat.Fragment{{RecipientID: "user", Text: reply}}, nil
	}
}

func TestMountReturnsEmptyView(t *testing.T) {
	r, _ := setupRouter(echo("hi"))

	resp := do(t, r, http.MethodPost, "/session", nil)
	require.Equal(t, http.StatusCreated, resp.Code)

	view := decodeView(t, resp)
	require.NotEmpty(t, view.SessionID)
	require.Empty(t, view.Transcript)
	require.False(t, view.Busy)
	require.False(t, view.CanSubmit)
}

func TestComposeAndSubmit(t *testing.T) {
	r, sessions := setupRouter(echo("Rispondo alle tue domande."))
	id := decodeView(t, do(t, r, http.MethodPost, "/session", nil)).SessionID

	resp := do(t, r, http.MethodPut, "/session/"+id+"/composer", map[string]string{"text": "Come funzioni?"})
	require.Equal(t, http.StatusOK, resp.Code)
	view := decodeView(t, resp)
	require.Equal(t, "Come funzioni?", view.Composer)
	require.True(t, view.CanSubmit)

	resp = do(t, r, http.MethodPost, "/session/"+id+"/submit", nil)
	require.Equal(t, http.StatusAccepted, resp.Code)
	var submitted SubmitResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&submitted))
	require.True(t, submitted.Accepted)
	require.Equal(t, "", submitted.View.Composer)
	require.Equal(t, "Come funzioni?", submitted.View.Transcript[0].Text)

	ctrl, err := sessions.Get(context.Background(), id)
	require.NoError(t, err)
	ctrl.Wait()

	view = decodeView(t, do(t, r, http.MethodGet, "/session/"+id, nil))
	require.False(t, view.Busy)
	require.Len(t, view.Transcript, 2)
	require.Equal(t, chat.OriginAgent, view.Transcript[1].Origin)
	require.Equal(t, "Rispondo alle tue domande.", view.Transcript[1].Text)
}

func TestSubmitBlankIsIgnored(t *testing.T) {
	r, _ := setupRouter(echo("hi"))
	id := decodeView(t, do(t, r, http.MethodPost, "/session", nil)).SessionID

	do(t, r, http.MethodPut, "/session/"+id+"/composer", map[string]string{"text": "   "})
	resp := do(t, r, http.MethodPost, "/session/"+id+"/submit", nil)

	require.Equal(t, http.StatusOK, resp.Code)
	var submitted SubmitResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&submitted))
	require.False(t, submitted.Accepted)
	require.Empty(t, submitted.View.Transcript)
	require.Equal(t, "   ", submitted.View.Composer)
}

func TestSubmitFailureShowsFallback(t *testing.T) {
	r, sessions := setupRouter(transport.Func(func(context.Context, string, string) ([]chat.Fragment, error) {
		return nil, errors.New("connection refused")
	}))
	id := decodeView(t, do(t, r, http.MethodPost, "/session", nil)).SessionID

	do(t, r, http.MethodPut, "/session/"+id+"/composer", map[string]string{"text": "hello"})
	do(t, r, http.MethodPost, "/session/"+id+"/submit", nil)

	ctrl, err := sessions.Get(context.Background(), id)
	require.NoError(t, err)
	ctrl.Wait()

	view := decodeView(t, do(t, r, http.MethodGet, "/session/"+id, nil))
	require.Len(t, view.Transcript, 2)
	require.Equal(t, session.DefaultFallbackText, view.Transcript[1].Text)
	require.False(t, view.Busy)
}

func TestUpdateComposerRequiresText(t *testing.T) {
	r, _ := setupRouter(echo("hi"))
	id := decodeView(t, do(t, r, http.MethodPost, "/session", nil)).SessionID

	resp := do(t, r, http.MethodPut, "/session/"+id+"/composer", map[string]string{})
	require.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestUnknownSession(t *testing.T) {
	r, _ := setupRouter(echo("hi"))

	require.Equal(t, http.StatusNotFound, do(t, r, http.MethodGet, "/session/missing", nil).Code)
	require.Equal(t, http.StatusNotFound, do(t, r, http.MethodPost, "/session/missing/submit", nil).Code)
	require.Equal(t, http.StatusNotFound, do(t, r, http.MethodDelete, "/session/missing", nil).Code)
}

func TestUnmount(t *testing.T) {
	r, sessions := setupRouter(echo("hi"))
	id := decodeView(t, do(t, r, http.MethodPost, "/session", nil)).SessionID

	require.Equal(t, http.StatusNoContent, do(t, r, http.MethodDelete, "/session/"+id, nil).Code)
	require.Zero(t, sessions.Len())
	require.Equal(t, http.StatusNotFound, do(t, r, http.MethodGet, "/session/"+id, nil).Code)
}

func TestMountWithoutTransport(t *testing.T) {
	r, _ := setupRouter(nil)
	require.Equal(t, http.StatusServiceUnavailable, do(t, r, http.MethodPost, "/session", nil).Code)
}
