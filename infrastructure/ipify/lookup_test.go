package ipify

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLookup(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		want    string
		wantErr bool
	}{
		{name: "json body", status: http.StatusOK, body: `{"ip":"203.0.113.7"}`, want: "203.0.113.7"},
		{name: "plain body", status: http.StatusOK, body: "198.51.100.1\n", want: "198.51.100.1"},
		{name: "empty body", status: http.StatusOK, body: "", wantErr: true},
		{name: "empty ip", status: http.StatusOK, body: `{"ip":""}`, wantErr: true},
		{name: "server error", status: http.StatusBadGateway, body: "oops", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := require.New(t)
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			address, err := NewLookup(server.URL).Lookup(ctx)

			if tt.wantErr {
				req.Error(err)
				return
			}
			req.NoError(err)
			req.Equal(tt.want, address)
		})
	}
}

func TestLookup_Timeout(t *testing.T) {
	req := require.New(t)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(200 * time.Millisecond)
		_, _ = w.Write([]byte("203.0.113.7"))
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := NewLookup(server.URL).Lookup(ctx)

	req.Error(err)
}
