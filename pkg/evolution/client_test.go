package evolution_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agendazap/dispatcher/pkg/evolution"
)

func instance(url string) evolution.Instance {
	return evolution.Instance{Host: url + "/", APIKey: "secret", Name: "main"}
}

func TestSendText(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/message/sendText/main", r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get("apikey"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, map[string]string{"number": "+5511988887777", "text": "Aula hoje"}, body)

		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"key":{"remoteJid":"5511988887777@s.whatsapp.net","id":"BAE5F"},"status":"PENDING"}`))
	}))
	defer server.Close()

	res, err := evolution.NewClient().SendText(context.Background(), instance(server.URL), "+5511988887777", "Aula hoje")
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, res.StatusCode)
	assert.Equal(t, "BAE5F", res.MessageID)
	assert.Equal(t, "PENDING", res.Status)
}

func TestSendButtonText(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/message/sendButtons/main", r.URL.Path)

		raw, err := io.ReadAll(r.Body)
		require.NoError(t, err)

		var keys map[string]json.RawMessage
		require.NoError(t, json.Unmarshal(raw, &keys))
		assert.NotContains(t, keys, "title")
		assert.NotContains(t, keys, "footer")

		var body struct {
			Number      string `json:"number"`
			Description string `json:"description"`
			Buttons     []struct {
				Type        string `json:"type"`
				DisplayText string `json:"displayText"`
				URL         string `json:"url"`
			} `json:"buttons"`
		}
		require.NoError(t, json.Unmarshal(raw, &body))
		assert.Equal(t, "Inscreva-se", body.Description)
		require.Len(t, body.Buttons, 1)
		assert.Equal(t, "url", body.Buttons[0].Type)
		assert.Equal(t, "Abrir", body.Buttons[0].DisplayText)
		assert.Equal(t, "https://example.com", body.Buttons[0].URL)

		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	_, err := evolution.NewClient().SendButtonText(context.Background(), instance(server.URL),
		"+5511988887777", "Inscreva-se", "Abrir", "https://example.com")
	require.NoError(t, err)
}

func TestSendMedia(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/message/sendMedia/main", r.URL.Path)

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "image", body["mediatype"])
		assert.Equal(t, "image/png", body["mimetype"])
		assert.Equal(t, "cGluZw==", body["media"])
		assert.Equal(t, "promo.png", body["fileName"])
		assert.Equal(t, "Veja", body["caption"])

		_, _ = w.Write([]byte(`{"status":"SUCCESS"}`))
	}))
	defer server.Close()

	_, err := evolution.NewClient().SendMedia(context.Background(), instance(server.URL), evolution.MediaMessage{
		Number:    "+5511988887777",
		MediaType: "image",
		MimeType:  "image/png",
		Caption:   "Veja",
		Media:     "cGluZw==",
		FileName:  "promo.png",
	})
	require.NoError(t, err)
}

func TestSend_Failures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{"server error", http.StatusBadGateway, "bad gateway", evolution.ErrUnavailable},
		{"throttled", http.StatusTooManyRequests, "", evolution.ErrUnavailable},
		{"bad request", http.StatusBadRequest, `{"message":["number not on whatsapp"]}`, evolution.ErrRejected},
		{"unauthorized", http.StatusUnauthorized, `{"error":"Unauthorized"}`, evolution.ErrRejected},
		{"error payload", http.StatusOK, `{"status":"error","message":"instance not connected"}`, evolution.ErrRejected},
		{"error key", http.StatusOK, `{"error":"boom"}`, evolution.ErrRejected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			_, err := evolution.NewClient().SendText(context.Background(), instance(server.URL), "+5511988887777", "hi")
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestSend_TruncatedSuccessBody(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "100")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"sta`))
		w.(http.Flusher).Flush()
		panic(http.ErrAbortHandler)
	}))
	defer server.Close()

	res, err := evolution.NewClient().SendText(context.Background(), instance(server.URL), "+5511988887777", "hi")
	require.ErrorIs(t, err, evolution.ErrUnavailable)
	assert.Equal(t, http.StatusOK, res.StatusCode)
}

func TestSend_NetworkErrors(t *testing.T) {
	t.Parallel()

	t.Run("connection refused", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.NotFoundHandler())
		url := server.URL
		server.Close()

		_, err := evolution.NewClient().SendText(context.Background(), instance(url), "+5511988887777", "hi")
		assert.ErrorIs(t, err, evolution.ErrUnavailable)
	})

	t.Run("timeout", func(t *testing.T) {
		t.Parallel()

		release := make(chan struct{})
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-release:
			case <-r.Context().Done():
			}
		}))
		defer server.Close()
		defer close(release)

		client := evolution.NewClient(evolution.WithTimeout(50 * time.Millisecond))
		_, err := client.SendText(context.Background(), instance(server.URL), "+5511988887777", "hi")
		assert.ErrorIs(t, err, evolution.ErrUnavailable)
		assert.ErrorIs(t, err, evolution.ErrTimeout)
	})
}

func TestSend_Validation(t *testing.T) {
	t.Parallel()

	client := evolution.NewClient()
	ctx := context.Background()

	_, err := client.SendText(ctx, evolution.Instance{Host: "https://h", Name: "main"}, "+55", "hi")
	assert.ErrorIs(t, err, evolution.ErrInvalidInstance)

	_, err = client.SendText(ctx, evolution.Instance{Host: "ftp://h", APIKey: "k", Name: "main"}, "+55", "hi")
	assert.ErrorIs(t, err, evolution.ErrInvalidInstance)

	_, err = client.SendText(ctx, instance("https://h"), "+55", "")
	assert.ErrorIs(t, err, evolution.ErrInvalidMessage)

	_, err = client.SendButtonText(ctx, instance("https://h"), "+55", "hi", "", "https://x")
	assert.ErrorIs(t, err, evolution.ErrInvalidMessage)

	_, err = client.SendMedia(ctx, instance("https://h"), evolution.MediaMessage{Number: "+55", MediaType: "image"})
	assert.ErrorIs(t, err, evolution.ErrInvalidMessage)
}

func TestCircuitBreakerOpensPerInstance(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := evolution.NewClient(evolution.WithCircuitBreaker(2, time.Hour))
	inst := instance(server.URL)
	ctx := context.Background()

	for range 2 {
		_, err := client.SendText(ctx, inst, "+5511988887777", "hi")
		require.ErrorIs(t, err, evolution.ErrUnavailable)
	}
	assert.Equal(t, evolution.CircuitOpen, client.Breaker(inst).State())

	_, err := client.SendText(ctx, inst, "+5511988887777", "hi")
	assert.ErrorIs(t, err, evolution.ErrCircuitOpen)
	assert.ErrorIs(t, err, evolution.ErrUnavailable)
	assert.Equal(t, int32(2), calls.Load())

	other := inst
	other.Name = "secondary"
	_, err = client.SendText(ctx, other, "+5511988887777", "hi")
	assert.NotErrorIs(t, err, evolution.ErrCircuitOpen)
	assert.Equal(t, int32(3), calls.Load())
}

func TestCircuitBreaker_Recovery(t *testing.T) {
	t.Parallel()

	cb := evolution.NewCircuitBreaker(1, 20*time.Millisecond)
	assert.True(t, cb.Allow())

	cb.RecordFailure()
	assert.Equal(t, evolution.CircuitOpen, cb.State())
	assert.False(t, cb.Allow())

	time.Sleep(30 * time.Millisecond)
	assert.True(t, cb.Allow())
	assert.Equal(t, evolution.CircuitHalfOpen, cb.State())

	cb.RecordFailure()
	assert.False(t, cb.Allow())

	time.Sleep(30 * time.Millisecond)
	require.True(t, cb.Allow())
	cb.RecordSuccess()
	assert.Equal(t, evolution.CircuitClosed, cb.State())
	assert.Equal(t, "closed", cb.State().String())
}
