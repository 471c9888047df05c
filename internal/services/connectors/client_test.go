package connectors

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

// fakeConnect records requests and answers with a scripted status
type fakeConnect struct {
	mu       sync.Mutex
	requests []recordedRequest
	status   func(r *http.Request, attempt int) int
}

type recordedRequest struct {
	Method string
	Path   string
	Body   map[string]interface{}
}

func (f *fakeConnect) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	rec := recordedRequest{Method: r.Method, Path: r.URL.Path}
	_ = json.NewDecoder(r.Body).Decode(&rec.Body)
	f.requests = append(f.requests, rec)
	attempt := len(f.requests)
	f.mu.Unlock()

	status := http.StatusOK
	if f.status != nil {
		status = f.status(r, attempt)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(`{}`))
}

func (f *fakeConnect) calls() []recordedRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]recordedRequest(nil), f.requests...)
}

func newTestClient(t *testing.T, fake *fakeConnect) *KafkaConnectClient {
	t.Helper()
	server := httptest.NewServer(fake)
	t.Cleanup(server.Close)

	client := NewKafkaConnectClient(server.URL+"/", 2, nil)
	client.client.RetryWaitMin = time.Millisecond
	client.client.RetryWaitMax = 5 * time.Millisecond
	return client
}

func TestKafkaConnectClient_CreateConnector(t *testing.T) {
	fake := &fakeConnect{status: func(*http.Request, int) int { return http.StatusCreated }}
	client := newTestClient(t, fake)

	spec := &ConnectorSpec{Name: "inventory-connector", Config: map[string]string{"tasks.max": "1"}}
	if err := client.CreateConnector(context.Background(), spec); err != nil {
		t.Fatalf("CreateConnector() error = %v", err)
	}

	calls := fake.calls()
	if len(calls) != 1 {
		t.Fatalf("expected 1 request, got %d", len(calls))
	}
	if calls[0].Method != http.MethodPost || calls[0].Path != "/connectors/" {
		t.Errorf("request = %s %s", calls[0].Method, calls[0].Path)
	}
	if calls[0].Body["name"] != "inventory-connector" {
		t.Errorf("body = %v", calls[0].Body)
	}
	config, _ := calls[0].Body["config"].(map[string]interface{})
	if config["tasks.max"] != "1" {
		t.Errorf("config = %v", config)
	}
}

func TestKafkaConnectClient_Statuses(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		call    func(c *KafkaConnectClient) error
		wantErr error
		anyErr  bool
	}{
		{
			name:    "create conflict",
			status:  http.StatusConflict,
			call:    func(c *KafkaConnectClient) error { return c.CreateConnector(context.Background(), &ConnectorSpec{Name: "a"}) },
			wantErr: ErrConnectorExists,
		},
		{
			name:   "create rejected",
			status: http.StatusBadRequest,
			call:   func(c *KafkaConnectClient) error { return c.CreateConnector(context.Background(), &ConnectorSpec{Name: "a"}) },
			anyErr: true,
		},
		{
			name:    "delete missing",
			status:  http.StatusNotFound,
			call:    func(c *KafkaConnectClient) error { return c.DeleteConnector(context.Background(), "a") },
			wantErr: ErrConnectorNotFound,
		},
		{
			name:   "delete ok",
			status: http.StatusNoContent,
			call:   func(c *KafkaConnectClient) error { return c.DeleteConnector(context.Background(), "a") },
		},
		{
			name:   "update ok",
			status: http.StatusOK,
			call: func(c *KafkaConnectClient) error {
				return c.UpdateConnectorConfig(context.Background(), "a", map[string]string{"tasks.max": "2"})
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := &fakeConnect{status: func(*http.Request, int) int { return tt.status }}
			err := tt.call(newTestClient(t, fake))
			switch {
			case tt.wantErr != nil:
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("error = %v, want %v", err, tt.wantErr)
				}
			case tt.anyErr:
				if err == nil {
					t.Error("expected error")
				}
			default:
				if err != nil {
					t.Errorf("unexpected error = %v", err)
				}
			}
		})
	}
}

func TestKafkaConnectClient_Paths(t *testing.T) {
	fake := &fakeConnect{}
	client := newTestClient(t, fake)
	ctx := context.Background()

	_ = client.DeleteConnector(ctx, "orders")
	_ = client.UpdateConnectorConfig(ctx, "orders", map[string]string{})

	calls := fake.calls()
	if len(calls) != 2 {
		t.Fatalf("expected 2 requests, got %d", len(calls))
	}
	if calls[0].Method != http.MethodDelete || calls[0].Path != "/connectors/orders/" {
		t.Errorf("delete request = %s %s", calls[0].Method, calls[0].Path)
	}
	if calls[1].Method != http.MethodPut || calls[1].Path != "/connectors/orders/config" {
		t.Errorf("update request = %s %s", calls[1].Method, calls[1].Path)
	}
}

func TestKafkaConnectClient_Retries(t *testing.T) {
	fake := &fakeConnect{status: func(_ *http.Request, attempt int) int {
		if attempt < 3 {
			return http.StatusServiceUnavailable
		}
		return http.StatusCreated
	}}
	client := newTestClient(t, fake)

	if err := client.CreateConnector(context.Background(), &ConnectorSpec{Name: "a"}); err != nil {
		t.Fatalf("CreateConnector() error = %v", err)
	}
	if n := len(fake.calls()); n != 3 {
		t.Errorf("expected 3 attempts, got %d", n)
	}
}

func TestKafkaConnectClient_GivesUp(t *testing.T) {
	fake := &fakeConnect{status: func(*http.Request, int) int { return http.StatusInternalServerError }}
	client := newTestClient(t, fake)

	if err := client.CreateConnector(context.Background(), &ConnectorSpec{Name: "a"}); err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if n := len(fake.calls()); n != 3 {
		t.Errorf("expected 1 attempt plus 2 retries, got %d", n)
	}
}

func TestKafkaConnectClient_Unreachable(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	client := NewKafkaConnectClient(url, 0, nil)
	if err := client.DeleteConnector(context.Background(), "a"); err == nil {
		t.Error("expected error for unreachable endpoint")
	}
}
