package main

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
		"sync"
	"testing"

	schedulerpkg "github.com/gammadia/kubeagents/scheduler"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockScheduler struct {
	mu       sync.Mutex
	demand   map[string]int
	nodes    []schedulerpkg.NodeInfo
	shutdown bool
}

func (m *mockScheduler) SetDemand(label string, count int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.shutdown {
		return schedulerpkg.ErrShuttingDown
	}
	m.demand[label] = count
	return nil
}

func (m *mockScheduler) Nodes() []schedulerpkg.NodeInfo {
	return m.nodes
}

func newTestAdmin(t *testing.T, s *mockScheduler) *httptest.Server {
	t.Helper()

	reg := prometheus.NewRegistry()
	status, err := newStatus(reg)
	require.NoError(t, err)
	status.apply(schedulerpkg.EventDemandUpdated{Label: "linux", Count: 2})

	server := httptest.NewServer(newAdminHandler(s, reg))
	t.Cleanup(server.Close)
	return server
}

func put(t *testing.T, url string) *http.Response {
	t.Helper()
	request, err := http.NewRequest(http.MethodPut, url, nil)
	require.NoError(t, err)
	response, err := http.DefaultClient.Do(request)
	require.NoError(t, err)
	t.Cleanup(func() { response.Body.Close() })
	return response
}

func TestAdminSetDemand(t *testing.T) {
	s := &mockScheduler{demand: map[string]int{}}
	server := newTestAdmin(t, s)

	response := put(t, server.URL+"/demand?label=linux+%26%26+docker&count=3")
	assert.Equal(t, http.StatusNoContent, response.StatusCode)

	response = put(t, server.URL+"/demand?label=*&count=1")
	assert.Equal(t, http.StatusNoContent, response.StatusCode)

	assert.Equal(t, map[string]int{"linux && docker": 3, "": 1}, s.demand)
}

func TestAdminSetDemandErrors(t *testing.T) {
	s := &mockScheduler{demand: map[string]int{}}
	server := newTestAdmin(t, s)

	assert.Equal(t, http.StatusBadRequest, put(t, server.URL+"/demand?label=linux&count=-1").StatusCode)
	assert.Equal(t, http.StatusBadRequest, put(t, server.URL+"/demand?label=%26%26&count=1").StatusCode)
	assert.Empty(t, s.demand)

	s.mu.Lock()
	s.shutdown = true
	s.mu.Unlock()
	assert.Equal(t, http.StatusServiceUnavailable, put(t, server.URL+"/demand?label=linux&count=1").StatusCode)
}

func TestAdminNodes(t *testing.T) {
	s := &mockScheduler{nodes: []schedulerpkg.NodeInfo{
		{Name: "ci-agent-1", Cloud: "ci", Label: "linux", Status: schedulerpkg.NodeStatusOnline},
	}}
	server := newTestAdmin(t, s)

	response, err := http.Get(server.URL + "/nodes")
	require.NoError(t, err)
	defer response.Body.Close()

	var nodes []schedulerpkg.NodeInfo
	require.NoError(t, json.NewDecoder(response.Body).Decode(&nodes))
	assert.Equal(t, s.nodes, nodes)
}

func TestAdminMetrics(t *testing.T) {
	server := newTestAdmin(t, &mockScheduler{})

	response, err := http.Get(server.URL + "/metrics")
	require.NoError(t, err)
	defer response.Body.Close()

	body, err := io.ReadAll(response.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `kubeagents_scheduler_demand{label="linux"} 2`)
}
