package llm_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nalar-edu/nalar-api/pkg/llm"
)

const testModel = "gemma-test"

func completionBody(content string) string {
	return `{"id":"cmpl-1","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":` + jsonString(content) + `},"finish_reason":"stop"}]}`
}

func jsonString(s string) string {
	raw, _ := json.Marshal(s)
	return string(raw)
}

func newGateway(t *testing.T, baseURL string, timeout time.Duration, maxRetries int) *llm.OpenAIGateway {
	t.Helper()
	gateway, err := llm.NewOpenAIGateway(llm.Config{
		BaseURL:        baseURL,
		APIKey:         "test",
		Model:          testModel,
		RequestTimeout: timeout,
		MaxRetries:     maxRetries,
		RetryBackoff:   time.Millisecond,
		Logger:         zerolog.Nop(),
	})
	require.NoError(t, err)
	return gateway
}

func TestCompleteReturnsReply(t *testing.T) {
	var sawJSONMode atomic.Bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if strings.Contains(string(body), "json_object") {
			sawJSONMode.Store(true)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(completionBody(`{"passed": true}`)))
	}))
	defer server.Close()

	gateway := newGateway(t, server.URL, time.Second, 0)

	reply, err := gateway.Complete(context.Background(), "evaluate this", llm.Params{JSONMode: true, MaxTokens: 64})
	require.NoError(t, err)
	assert.Equal(t, `{"passed": true}`, reply)
	assert.True(t, sawJSONMode.Load())
}

func TestCompleteRetriesTransportFaults(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"error":{"message":"loading model","type":"server_error"}}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(completionBody("recovered")))
	}))
	defer server.Close()

	gateway := newGateway(t, server.URL, time.Second, 2)

	reply, err := gateway.Complete(context.Background(), "hello", llm.Params{})
	require.NoError(t, err)
	assert.Equal(t, "recovered", reply)
	assert.Equal(t, int32(3), calls.Load())
}

func TestCompleteDoesNotRetryRejections(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"unknown model","type":"invalid_request_error"}}`))
	}))
	defer server.Close()

	gateway := newGateway(t, server.URL, time.Second, 3)

	_, err := gateway.Complete(context.Background(), "hello", llm.Params{})
	require.Error(t, err)
	assert.NotErrorIs(t, err, llm.ErrModelUnavailable)
	assert.NotErrorIs(t, err, llm.ErrModelTimeout)
	assert.Equal(t, int32(1), calls.Load())
}

func TestCompleteExhaustedRetriesReportUnavailable(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":{"message":"still loading","type":"server_error"}}`))
	}))
	defer server.Close()

	gateway := newGateway(t, server.URL, time.Second, 2)

	_, err := gateway.Complete(context.Background(), "hello", llm.Params{})
	require.ErrorIs(t, err, llm.ErrModelUnavailable)
	assert.Equal(t, int32(3), calls.Load())
}

func TestCompleteTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(completionBody("too late")))
	}))
	defer server.Close()

	gateway := newGateway(t, server.URL, 30*time.Millisecond, 1)

	_, err := gateway.Complete(context.Background(), "hello", llm.Params{})
	require.ErrorIs(t, err, llm.ErrModelTimeout)
}

func TestCompleteHonorsParentCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
		_, _ = w.Write([]byte(completionBody("too late")))
	}))
	defer server.Close()

	gateway := newGateway(t, server.URL, time.Second, 3)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := gateway.Complete(ctx, "hello", llm.Params{})
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestIsAvailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/models") {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"object":"list","data":[{"id":"gemma-test","object":"model"}]}`))
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	gateway := newGateway(t, server.URL, time.Second, 0)
	assert.True(t, gateway.IsAvailable(context.Background()))

	server.Close()
	assert.False(t, gateway.IsAvailable(context.Background()))
}
