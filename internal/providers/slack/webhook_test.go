package slack

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWebhookPostsText(t *testing.T) {
	var got webhookPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	p := NewWebhook(srv.URL, srv.Client())
	require.NoError(t, p.PostMessage(context.Background(), "", "Variation VO/00001 has been successfully applied to BOQ BOQ/00001."))
	assert.Equal(t, "Variation VO/00001 has been successfully applied to BOQ BOQ/00001.", got.Text)
	assert.Empty(t, got.Channel)
}

func TestWebhookReportsFailureStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	err := NewWebhook(srv.URL, srv.Client()).PostMessage(context.Background(), "#boq", "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
}
