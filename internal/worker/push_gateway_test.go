package worker

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"dispatchhub/internal/service"
)

func TestWebhookGatewaySend(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		wantErr bool
	}{
		{"accepted", http.StatusAccepted, false},
		{"rejected is dropped", http.StatusUnprocessableEntity, false},
		{"server error is retried", http.StatusBadGateway, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got service.NotificationView
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodPost || r.Header.Get("Content-Type") != "application/json" {
					t.Errorf("request = %s %s", r.Method, r.Header.Get("Content-Type"))
				}
				_ = json.NewDecoder(r.Body).Decode(&got)
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			g := NewWebhookGateway(srv.URL, time.Second, zerolog.Nop())
			err := g.Send(context.Background(), service.NotificationView{ID: "n1", Recipient: "u1", Title: "hello"})
			if (err != nil) != tt.wantErr {
				t.Errorf("Send() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got.ID != "n1" || got.Title != "hello" {
				t.Errorf("webhook received %+v", got)
			}
		})
	}
}

func TestWebhookGatewayUnconfigured(t *testing.T) {
	g := NewWebhookGateway("", 0, zerolog.Nop())
	if err := g.Send(context.Background(), service.NotificationView{ID: "n1"}); err != nil {
		t.Errorf("Send() without URL error = %v", err)
	}
}
