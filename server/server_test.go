package server

import (
	"encoding/json"
	"errors"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fluidlbm/core"
	"fluidlbm/simulation"
)

type fakeSource struct {
	mu   sync.Mutex
	step int
	err  error
	nan  bool
}

func (f *fakeSource) Snapshot() (simulation.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return simulation.Snapshot{}, f.err
	}
	f.step++
	density := []float64{1, 1.5}
	if f.nan {
		density[0] = math.NaN()
	}
	return simulation.Snapshot{
		Step:     f.step,
		Grid:     core.Grid{Nx: 2, Ny: 1, Nz: 1},
		D:        2,
		Density:  density,
		Velocity: []float64{0, 0.1, 0, -0.1},
		Flags:    []int32{0, 1},
		MLUps:    12.5,
	}, nil
}

func dial(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func waitClients(t *testing.T, s *Server, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return s.Clients() == n }, time.Second, 5*time.Millisecond)
}

func TestWebSocketSnapshots(t *testing.T) {
	src := &fakeSource{}
	s := New("", src, time.Second, nil)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	conn := dial(t, ts)
	var first Message
	require.NoError(t, conn.ReadJSON(&first))
	assert.Equal(t, "snapshot", first.Type)
	assert.Equal(t, 1, first.Step)
	assert.Equal(t, []float64{1, 1.5}, first.Density)
	assert.Equal(t, []int32{0, 1}, first.Flags)
	assert.Equal(t, 2, first.D)
	assert.Equal(t, 2, first.Nx)

	waitClients(t, s, 1)
	require.NoError(t, s.Broadcast())
	var second Message
	require.NoError(t, conn.ReadJSON(&second))
	assert.Equal(t, 2, second.Step)
	assert.Equal(t, 12.5, second.MLUps)

	conn.Close()
	waitClients(t, s, 0)
}

func TestBroadcastWithoutClients(t *testing.T) {
	src := &fakeSource{err: errors.New("boom")}
	s := New("", src, 0, nil)
	assert.NoError(t, s.Broadcast(), "source is not queried without clients")
}

func TestSnapshotEndpoint(t *testing.T) {
	src := &fakeSource{}
	ts := httptest.NewServer(New("", src, 0, nil).Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/snapshot")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var msg Message
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&msg))
	assert.Equal(t, []float64{0, 0.1, 0, -0.1}, msg.Velocity)

	src.mu.Lock()
	src.err = errors.New("closed")
	src.mu.Unlock()
	resp2, err := http.Get(ts.URL + "/snapshot")
	require.NoError(t, err)
	resp2.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp2.StatusCode)
}

func (f *fakeSource) setNaN(on bool) {
	f.mu.Lock()
	f.nan = on
	f.mu.Unlock()
}

func TestNonFiniteSnapshot(t *testing.T) {
	src := &fakeSource{nan: true}
	s := New("", src, time.Second, nil)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/snapshot")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Contains(t, string(body), "encoding step")

	conn := dial(t, ts)
	waitClients(t, s, 1)
	assert.Error(t, s.Broadcast())
	assert.Equal(t, 1, s.Clients(), "encoding errors keep clients connected")

	src.setNaN(false)
	require.NoError(t, s.Broadcast())
	var msg Message
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, []float64{1, 1.5}, msg.Density)
}
