package suggest

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, timeout time.Duration) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client := NewClient(Config{URL: server.URL, APIKey: "k3y", Timeout: timeout, RequestsPerMinute: 600}, nil)
	t.Cleanup(client.Close)
	return client
}

func TestClient_Suggest(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
		body       string
		want       []string
		wantErr    error
	}{
		{
			name:       "keeps first three unique titles",
			statusCode: http.StatusOK,
			body:       `{"suggestedBooks":["Brave New World"," Animal Farm ","brave new world","","Fahrenheit 451","We"]}`,
			want:       []string{"Brave New World", "Animal Farm", "Fahrenheit 451"},
		},
		{
			name:       "empty list",
			statusCode: http.StatusOK,
			body:       `{"suggestedBooks":[]}`,
			want:       []string{},
		},
		{
			name:       "rate limited",
			statusCode: http.StatusTooManyRequests,
			wantErr:    ErrRateLimited,
		},
		{
			name:       "server error",
			statusCode: http.StatusBadGateway,
			wantErr:    ErrServer,
		},
		{
			name:       "malformed body",
			statusCode: http.StatusOK,
			body:       `not json`,
			wantErr:    ErrBadResponse,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.statusCode)
				_, _ = io.WriteString(w, tt.body)
			}, time.Second)

			got, err := client.Suggest(context.Background(), Request{IssuedBookTitle: "1984", StudentName: "Alice"})
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestClient_SendsRequestShape(t *testing.T) {
	var (
		gotAuth string
		gotBody Request
	)
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		_, _ = io.WriteString(w, `{"suggestedBooks":["Dune Messiah"]}`)
	}, time.Second)

	_, err := client.Suggest(context.Background(), Request{IssuedBookTitle: "Dune", StudentName: "Paul"})
	require.NoError(t, err)
	assert.Equal(t, "Bearer k3y", gotAuth)
	assert.Equal(t, Request{IssuedBookTitle: "Dune", StudentName: "Paul"}, gotBody)
}

func TestClient_Timeout(t *testing.T) {
	release := make(chan struct{})

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}, 50*time.Millisecond)
	// Registered after newTestClient so it runs before server.Close (LIFO).
	t.Cleanup(func() { close(release) })

	start := time.Now()
	_, err := client.Suggest(context.Background(), Request{IssuedBookTitle: "1984"})
	assert.Error(t, err)
	assert.Less(t, time.Since(start), time.Second)
}
