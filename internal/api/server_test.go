package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/diogoX451/jackson/internal/core/ports"
	"github.com/diogoX451/jackson/internal/core/service"
	"github.com/diogoX451/jackson/internal/jack"
	"github.com/diogoX451/jackson/internal/jack/jacktest"
	"github.com/diogoX451/jackson/internal/metrics"
	"github.com/diogoX451/jackson/internal/store/memory"
)

type testServer struct {
	graph   *jacktest.Graph
	journal *memory.Journal
	http    *httptest.Server
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	graph := jacktest.NewSystem(2, 2)
	graph.AddPort("alice:receive_1", ports.PortIsOutput)
	graph.AddPort("alice:send_1", ports.PortIsInput)

	m := metrics.New()
	journal := memory.New(time.Hour)
	connector := service.NewConnector(
		jack.NewClient("server", graph, nil),
		nil,
		service.WithConnectorRetry(jack.RetryPolicy{Attempts: 2, Interval: time.Millisecond}),
		service.WithJournal(journal),
		service.WithConnectorMetrics(m),
	)

	srv := httptest.NewServer(NewServer(connector, journal, m, nil))
	t.Cleanup(srv.Close)
	return &testServer{graph: graph, journal: journal, http: srv}
}

func (s *testServer) patch(t *testing.T, session, body string) (int, []byte) {
	t.Helper()
	req, err := http.NewRequest(http.MethodPatch, s.http.URL+"/connect", bytes.NewBufferString(body))
	require.NoError(t, err)
	req.Header.Set(SessionHeader, session)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, data
}

func (s *testServer) get(t *testing.T, path string) (int, []byte) {
	t.Helper()
	resp, err := http.Get(s.http.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, data
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	status, body := s.get(t, "/health")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "healthy", gjson.GetBytes(body, "status").String())
}

func TestInit(t *testing.T) {
	s := newTestServer(t)
	status, body := s.get(t, "/init")
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"input_channel_count":2,"output_channel_count":2,"sample_rate":48000,"buffer_size":256}`, string(body))
}

func TestConnect(t *testing.T) {
	t.Run("wires and journals", func(t *testing.T) {
		s := newTestServer(t)
		status, body := s.patch(t, "s1", `[
			{"source":"alice:receive_1","destination":"system:playback_2","role":"send"},
			{"source":"system:capture_1","destination":"alice:send_1","role":"receive"}
		]`)
		require.Equal(t, http.StatusOK, status, string(body))
		assert.Equal(t, int64(2), gjson.GetBytes(body, "connected").Int())
		assert.True(t, s.graph.Connected("alice:receive_1", "system:playback_2"))

		status, body = s.get(t, "/sessions/s1/connections")
		require.Equal(t, http.StatusOK, status)
		assert.Equal(t, "s1", gjson.GetBytes(body, "session").String())
		assert.Equal(t, "system:playback_2", gjson.GetBytes(body, "connections.0.destination").String())
		assert.Equal(t, "receive", gjson.GetBytes(body, "connections.1.role").String())

		status, body = s.get(t, "/metrics")
		require.Equal(t, http.StatusOK, status)
		assert.Contains(t, string(body), `jackson_connector_requests_total{result="ok",role="send"} 1`)
	})

	t.Run("exclusivity violation", func(t *testing.T) {
		s := newTestServer(t)
		s.graph.Link("system:capture_2", "system:playback_2")

		status, body := s.patch(t, "s1", `[{"source":"alice:receive_1","destination":"system:playback_2","role":"send"}]`)
		require.Equal(t, http.StatusConflict, status)

		var got struct {
			ErrorKind string `json:"error_kind"`
			Data      struct {
				Port                string   `json:"port"`
				ExistingConnections []string `json:"existing_connections"`
			} `json:"data"`
		}
		require.NoError(t, json.Unmarshal(body, &got))
		assert.Equal(t, "PlaybackPortAlreadyHasConnections", got.ErrorKind)
		assert.Equal(t, "system:playback_2", got.Data.Port)
		assert.Equal(t, []string{"system:capture_2"}, got.Data.ExistingConnections)
	})

	t.Run("port not found", func(t *testing.T) {
		s := newTestServer(t)
		status, body := s.patch(t, "s1", `[{"source":"bob:receive_1","destination":"system:playback_2","role":"send"}]`)
		require.Equal(t, http.StatusNotFound, status)
		assert.Equal(t, "PortNotFound", gjson.GetBytes(body, "error_kind").String())
		assert.Equal(t, "source", gjson.GetBytes(body, "data.side").String())
		assert.Equal(t, "bob:receive_1", gjson.GetBytes(body, "data.name").String())
	})

	t.Run("failed to connect", func(t *testing.T) {
		s := newTestServer(t)
		s.graph.FailConnects(-1, nil)
		status, body := s.patch(t, "s1", `[{"source":"alice:receive_1","destination":"system:playback_1","role":"send"}]`)
		require.Equal(t, http.StatusFailedDependency, status)
		assert.Equal(t, "FailedToConnectPorts", gjson.GetBytes(body, "error_kind").String())
		assert.Equal(t, "alice:receive_1", gjson.GetBytes(body, "data.source").String())
	})

	t.Run("bad input", func(t *testing.T) {
		s := newTestServer(t)

		status, body := s.patch(t, "s1", `{"source":"x"}`)
		assert.Equal(t, http.StatusBadRequest, status)
		assert.Equal(t, "INVALID_REQUEST", gjson.GetBytes(body, "code").String())

		status, body = s.patch(t, "s1", `[{"source":"alice:receive_1_x","destination":"system:playback_1","role":"send"}]`)
		assert.Equal(t, http.StatusBadRequest, status)
		assert.Equal(t, "INVALID_PORT", gjson.GetBytes(body, "code").String())

		status, _ = s.patch(t, "s1", `[{"source":"alice:receive_1","destination":"system:playback_1","role":"both"}]`)
		assert.Equal(t, http.StatusBadRequest, status)
		assert.Equal(t, 0, s.graph.ConnectCalls())
	})

	t.Run("unknown session has no connections", func(t *testing.T) {
		s := newTestServer(t)
		status, body := s.get(t, "/sessions/nobody/connections")
		require.Equal(t, http.StatusOK, status)
		assert.Equal(t, int64(0), gjson.GetBytes(body, "connections.#").Int())

		entries, err := s.journal.Entries(context.Background(), "nobody")
		require.NoError(t, err)
		assert.Empty(t, entries)
	})
}
