package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGeneratePanelSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"imageBase64":"data:image/png;base64,aGVsbG8="}`)
	}))
	defer srv.Close()

	client := NewHTTPGenerationClient(srv.URL)
	image, err := client.GeneratePanel(context.Background(), GenerationRequest{Prompt: "p", Size: PanelRequestSize})
	require.NoError(t, err)
	assert.Equal(t, "aGVsbG8=", image)
}

func TestGeneratePanelStructuredPolicyRefusal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"error":{"type":"policy_refusal","message":"request declined"}}`)
	}))
	defer srv.Close()

	client := NewHTTPGenerationClient(srv.URL)
	_, err := client.GeneratePanel(context.Background(), GenerationRequest{})
	require.Error(t, err)

	var refusal *PolicyRefusalError
	assert.True(t, errors.As(err, &refusal))
	assert.True(t, IsModerationRefusal(err))
}

func TestGeneratePanelPlainStringError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"error":"upstream exploded","details":"gpu pool empty"}`)
	}))
	defer srv.Close()

	client := NewHTTPGenerationClient(srv.URL)
	_, err := client.GeneratePanel(context.Background(), GenerationRequest{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "upstream exploded")
	assert.Contains(t, err.Error(), "gpu pool empty")
	assert.False(t, IsModerationRefusal(err))
}

func TestGeneratePanelDegradedIsFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"imageBase64":"","degraded":true,"warning":"text only"}`)
	}))
	defer srv.Close()

	client := NewHTTPGenerationClient(srv.URL)
	_, err := client.GeneratePanel(context.Background(), GenerationRequest{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "text only")
}

func TestGeneratePanelNonJSONRetriedOnce(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.Header().Set("Content-Type", "text/html")
			fmt.Fprint(w, "<html>502 Bad Gateway</html>")
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"imageBase64":"aW1n"}`)
	}))
	defer srv.Close()

	client := NewHTTPGenerationClient(srv.URL)
	image, err := client.GeneratePanel(context.Background(), GenerationRequest{})
	require.NoError(t, err)
	assert.Equal(t, "aW1n", image)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestGeneratePanelPolicyRefusalNotRetried(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"error":{"type":"policy_refusal","message":"no"}}`)
	}))
	defer srv.Close()

	client := NewHTTPGenerationClient(srv.URL)
	_, err := client.GeneratePanel(context.Background(), GenerationRequest{})
	require.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestIsModerationRefusalSignatures(t *testing.T) {
	assert.True(t, IsModerationRefusal(fmt.Errorf("request Blocked by Safety Moderation layer")))
	assert.True(t, IsModerationRefusal(fmt.Errorf("violates content policy")))
	assert.True(t, IsModerationRefusal(fmt.Errorf("safety_violations=[sexual]")))
	assert.False(t, IsModerationRefusal(fmt.Errorf("connection reset by peer")))
	assert.False(t, IsModerationRefusal(nil))
}

func TestStripDataURLPrefix(t *testing.T) {
	assert.Equal(t, "abc", StripDataURLPrefix("data:image/png;base64,abc"))
	assert.Equal(t, "abc", StripDataURLPrefix("abc"))
}
