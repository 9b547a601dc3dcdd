// Package server publishes simulation snapshots to websocket clients.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"fluidlbm/simulation"
)

// SnapshotSource is implemented by *simulation.Engine.
type SnapshotSource interface {
	Snapshot() (simulation.Snapshot, error)
}

// Message is the JSON document sent to clients.
type Message struct {
	Type     string    `json:"type"`
	Step     int       `json:"step"`
	Nx       int       `json:"nx"`
	Ny       int       `json:"ny"`
	Nz       int       `json:"nz"`
	D        int       `json:"d"`
	Density  []float64 `json:"density"`
	Velocity []float64 `json:"velocity"`
	Flags    []int32   `json:"flags"`
	MLUps    float64   `json:"mlups"`
}

func newMessage(s simulation.Snapshot) Message {
	return Message{
		Type:     "snapshot",
		Step:     s.Step,
		Nx:       s.Grid.Nx,
		Ny:       s.Grid.Ny,
		Nz:       s.Grid.Nz,
		D:        s.D,
		Density:  s.Density,
		Velocity: s.Velocity,
		Flags:    s.Flags,
		MLUps:    s.MLUps,
	}
}

// Server pushes a snapshot to every connected client each interval.
type Server struct {
	addr     string
	source   SnapshotSource
	interval time.Duration
	log      *log.Logger
	upgrader websocket.Upgrader

	clientsMu sync.RWMutex
	clients   map[*websocket.Conn]*sync.Mutex
}

// New returns a server for source. A nil logger discards output.
func New(addr string, source SnapshotSource, interval time.Duration, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	return &Server{
		addr:     addr,
		source:   source,
		interval: interval,
		log:      logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients: make(map[*websocket.Conn]*sync.Mutex),
	}
}

// Handler serves /ws (websocket stream) and /snapshot (one JSON document).
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/snapshot", s.handleSnapshot)
	return mux
}

// Run listens on the server address and broadcasts until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{Addr: s.addr, Handler: s.Handler()}
	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	s.log.Printf("serving snapshots on ws://%s/ws", s.addr)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case err := <-errc:
			return err
		case <-ticker.C:
			if err := s.Broadcast(); err != nil {
				s.log.Printf("snapshot error: %v", err)
			}
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			s.closeClients()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				return err
			}
			if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		}
	}
}

// Clients returns the number of connected clients.
func (s *Server) Clients() int {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	return len(s.clients)
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	snap, err := s.source.Snapshot()
	if err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	data, err := encode(snap)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(data)
}

// encode marshals a snapshot before anything is written, so a field that
// cannot be represented (NaN from a diverged run) never truncates a
// response or counts as a failed connection.
func encode(snap simulation.Snapshot) ([]byte, error) {
	data, err := json.Marshal(newMessage(snap))
	if err != nil {
		return nil, fmt.Errorf("server: encoding step %d: %w", snap.Step, err)
	}
	return data, nil
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Println("websocket upgrade error:", err)
		return
	}
	defer conn.Close()

	connMu := &sync.Mutex{}
	s.clientsMu.Lock()
	s.clients[conn] = connMu
	s.clientsMu.Unlock()
	defer func() {
		s.clientsMu.Lock()
		delete(s.clients, conn)
		s.clientsMu.Unlock()
	}()

	if snap, err := s.source.Snapshot(); err == nil {
		if data, err := encode(snap); err != nil {
			s.log.Printf("snapshot error: %v", err)
		} else {
			connMu.Lock()
			err = conn.WriteMessage(websocket.TextMessage, data)
			connMu.Unlock()
			if err != nil {
				return
			}
		}
	}

	// Clients only listen; reading detects the close.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// Broadcast sends the current snapshot to every client, dropping clients
// whose write fails. An encoding error is returned and no client is dropped.
func (s *Server) Broadcast() error {
	if s.Clients() == 0 {
		return nil
	}
	snap, err := s.source.Snapshot()
	if err != nil {
		return err
	}
	data, err := encode(snap)
	if err != nil {
		return err
	}

	var failed []*websocket.Conn
	s.clientsMu.RLock()
	for client, mu := range s.clients {
		mu.Lock()
		err := client.WriteMessage(websocket.TextMessage, data)
		mu.Unlock()
		if err != nil {
			s.log.Println("websocket write error:", err)
			client.Close()
			failed = append(failed, client)
		}
	}
	s.clientsMu.RUnlock()

	if len(failed) > 0 {
		s.clientsMu.Lock()
		for _, c := range failed {
			delete(s.clients, c)
		}
		s.clientsMu.Unlock()
	}
	return nil
}

func (s *Server) closeClients() {
	s.clientsMu.Lock()
	defer s.clientsMu.Unlock()
	for c := range s.clients {
		c.Close()
		delete(s.clients, c)
	}
}
