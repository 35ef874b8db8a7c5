package http

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadLimited(t *testing.T) {
	data, truncated, err := ReadLimited(strings.NewReader("12345"), 4)
	require.NoError(t, err)
	assert.Equal(t, "1234", string(data))
	assert.True(t, truncated)

	data, truncated, err = ReadLimited(strings.NewReader("1234"), 4)
	require.NoError(t, err)
	assert.Equal(t, "1234", string(data))
	assert.False(t, truncated)

	data, truncated, err = ReadLimited(strings.NewReader("abc"), 0)
	require.NoError(t, err)
	assert.Equal(t, "abc", string(data))
	assert.False(t, truncated)
}

func TestProbeClient_DoesNotFollowRedirects(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/webhook/old" {
			http.Redirect(w, r, "/webhook/new", http.StatusMovedPermanently)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	req, err := http.NewRequest(http.MethodHead, server.URL+"/webhook/old", nil)
	require.NoError(t, err)

	resp, err := NewProbeClient(time.Second).Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusMovedPermanently, resp.StatusCode)
}

func TestDoerFunc(t *testing.T) {
	var called bool
	d := DoerFunc(func(req *http.Request) (*http.Response, error) {
		called = true
		return &http.Response{StatusCode: http.StatusNoContent, Body: http.NoBody}, nil
	})

	req, _ := http.NewRequest(http.MethodGet, "http://example.invalid", nil)
	resp, err := d.Do(req)
	require.NoError(t, err)
	assert.True(t, called)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}
