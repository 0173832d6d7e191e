package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMuxServesCounters(t *testing.T) {
	ObserveStreamMessage()
	ObserveDecodeFailure()
	ObserveAuthFailure("orders")
	ObserveOrderSubmission("confirmed")
	ObserveTransition("Live")

	srv := httptest.NewServer(newMux())
	defer srv.Close()

	body := get(t, srv.URL+"/metrics")
	assert.True(t, strings.Contains(body, "tradedash_stream_messages_total"))
	assert.True(t, strings.Contains(body, `tradedash_auth_failures_total{source="orders"}`))
	assert.True(t, strings.Contains(body, `tradedash_session_transitions_total{to="Live"}`))

	vars := get(t, srv.URL+"/debug/vars")
	assert.True(t, strings.Contains(vars, `"stream_decode_failures"`))
}

func get(t *testing.T, url string) string {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(b)
}
