package scheduler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trigg3rX/proof-coordinator/pkg/logging"
	"github.com/trigg3rX/proof-coordinator/pkg/types"
)

type rpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Method  string          `json:"method"`
	Params  []string        `json:"params"`
}

type fakeScheduler struct {
	mu       sync.Mutex
	requests []rpcRequest
	status   int
}

func (f *fakeScheduler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req rpcRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	f.mu.Lock()
	f.requests = append(f.requests, req)
	status := f.status
	f.mu.Unlock()

	if status != 0 {
		w.WriteHeader(status)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      req.ID,
		"result":  "accepted",
	})
}

func TestNewClient_Validation(t *testing.T) {
	_, err := NewClient(nil, Config{URL: "http://localhost:1"})
	assert.EqualError(t, err, "logger cannot be nil")

	_, err = NewClient(logging.NewNoOpLogger(), Config{})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestDeliver_SendsPositionalParams(t *testing.T) {
	scheduler := &fakeScheduler{}
	server := httptest.NewServer(scheduler)
	defer server.Close()

	client, err := NewClient(logging.NewNoOpLogger(), Config{URL: server.URL, RequestTimeout: time.Second})
	require.NoError(t, err)
	defer client.Close()

	result, err := client.Deliver(context.Background(), types.DispatchRequest{
		ProjectID:    "demo",
		CompositeKey: "abcd#2",
		Instance:     "0102",
		Priority:     "1",
	})
	require.NoError(t, err)
	assert.JSONEq(t, `"accepted"`, string(result))

	require.Len(t, scheduler.requests, 1)
	req := scheduler.requests[0]
	assert.Equal(t, "2.0", req.JSONRPC)
	assert.Equal(t, DeliverTaskMethod, req.Method)
	assert.Equal(t, []string{"demo", "abcd#2", "0102", "1"}, req.Params)
}

func TestDeliver_TransportFailure(t *testing.T) {
	scheduler := &fakeScheduler{status: http.StatusBadGateway}
	server := httptest.NewServer(scheduler)
	defer server.Close()

	client, err := NewClient(logging.NewNoOpLogger(), Config{URL: server.URL})
	require.NoError(t, err)
	defer client.Close()

	_, err = client.Deliver(context.Background(), types.DispatchRequest{CompositeKey: "k#0"})
	assert.Error(t, err)
}

func TestDeliver_ServerDown(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	client, err := NewClient(logging.NewNoOpLogger(), Config{URL: url, RequestTimeout: 200 * time.Millisecond})
	require.NoError(t, err)
	defer client.Close()

	_, err = client.Deliver(context.Background(), types.DispatchRequest{CompositeKey: "k#0"})
	assert.Error(t, err)
}
