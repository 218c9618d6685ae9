package service

import (
	"net"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/BadgersMC/LumalyteSRV/internal/config"
	"github.com/BadgersMC/LumalyteSRV/internal/model"
)

// StatusNotifier receives edge-triggered liveness transitions. Implemented by
// the bridge, which mirrors them into the Discord channel.
type StatusNotifier interface {
	ServerStarted(name string)
	ServerStopped(name string)
}

const dialTimeout = 5 * time.Second

type serverEntry struct {
	address    string
	maxPlayers int
	online     bool
	players    map[string]bool
}

// StatusTracker keeps the last observed state of every backend server:
// liveness from periodic TCP probes, player presence from proxy events.
// Start/stop notifications fire only on transitions, and the first sweep is
// silent so a backend restart does not replay the whole server list.
type StatusTracker struct {
	mu       sync.RWMutex
	servers  map[string]*serverEntry
	order    []string
	notifier StatusNotifier

	firstSweep bool
	interval   time.Duration
	dial       func(address string, timeout time.Duration) error
	done       chan struct{}
}

func NewStatusTracker(servers []config.ServerConfig, interval time.Duration) *StatusTracker {
	t := &StatusTracker{
		servers:    make(map[string]*serverEntry),
		firstSweep: true,
		interval:   interval,
		dial:       tcpDial,
		done:       make(chan struct{}),
	}
	for _, s := range servers {
		t.servers[s.Name] = &serverEntry{
			address:    s.Address,
			maxPlayers: s.MaxPlayers,
			players:    make(map[string]bool),
		}
		t.order = append(t.order, s.Name)
	}
	return t
}

func tcpDial(address string, timeout time.Duration) error {
	conn, err := net.DialTimeout("tcp", address, timeout)
	if err != nil {
		return err
	}
	return conn.Close()
}

// SetNotifier wires the transition sink. Must be called before Run.
func (t *StatusTracker) SetNotifier(n StatusNotifier) {
	t.notifier = n
}

// Run probes all servers on the configured interval until Shutdown.
func (t *StatusTracker) Run() {
	if t.interval <= 0 {
		return
	}
	t.Sweep()

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			t.Sweep()
		case <-t.done:
			return
		}
	}
}

func (t *StatusTracker) Shutdown() {
	close(t.done)
}

// Sweep probes every configured server once, in parallel, and applies the
// observed transitions.
func (t *StatusTracker) Sweep() {
	t.mu.RLock()
	addrs := make(map[string]string, len(t.servers))
	for name, e := range t.servers {
		if e.address != "" {
			addrs[name] = e.address
		}
	}
	first := t.firstSweep
	t.mu.RUnlock()

	var wg sync.WaitGroup
	results := make(map[string]bool, len(addrs))
	var resMu sync.Mutex
	for name, addr := range addrs {
		wg.Add(1)
		go func(name, addr string) {
			defer wg.Done()
			err := t.dial(addr, dialTimeout)
			resMu.Lock()
			results[name] = err == nil
			resMu.Unlock()
		}(name, addr)
	}
	wg.Wait()

	for name, online := range results {
		t.applyLiveness(name, online, first)
	}

	t.mu.Lock()
	t.firstSweep = false
	t.mu.Unlock()
}

func (t *StatusTracker) applyLiveness(name string, online, suppress bool) {
	t.mu.Lock()
	e, ok := t.servers[name]
	if !ok {
		t.mu.Unlock()
		return
	}
	changed := e.online != online
	e.online = online
	if changed && !online {
		// A dead server has no players; the proxy will re-report survivors.
		e.players = make(map[string]bool)
	}
	t.mu.Unlock()

	if !changed || suppress || t.notifier == nil {
		return
	}
	if online {
		log.Info().Str("server", name).Msg("server came online")
		t.notifier.ServerStarted(name)
	} else {
		log.Warn().Str("server", name).Msg("server went offline")
		t.notifier.ServerStopped(name)
	}
}

// MarkOnline records that the proxy saw a player reach a server, which proves
// the server is up without waiting for the next probe.
func (t *StatusTracker) MarkOnline(name string) {
	t.applyLiveness(name, true, t.isFirstSweep())
}

func (t *StatusTracker) isFirstSweep() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.firstSweep
}

// PlayerJoined moves a player onto a server, removing them from any other.
func (t *StatusTracker) PlayerJoined(server, username string) {
	t.mu.Lock()
	for _, e := range t.servers {
		delete(e.players, username)
	}
	e, ok := t.servers[server]
	if !ok {
		e = &serverEntry{players: make(map[string]bool)}
		t.servers[server] = e
		t.order = append(t.order, server)
	}
	e.players[username] = true
	e.online = true
	t.mu.Unlock()
}

// PlayerLeft removes a player from every server.
func (t *StatusTracker) PlayerLeft(username string) {
	t.mu.Lock()
	for _, e := range t.servers {
		delete(e.players, username)
	}
	t.mu.Unlock()
}

// TotalPlayers returns the number of players currently on the network.
func (t *StatusTracker) TotalPlayers() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	total := 0
	for _, e := range t.servers {
		total += len(e.players)
	}
	return total
}

// Players returns the usernames on one server, sorted.
func (t *StatusTracker) Players(server string) []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	e, ok := t.servers[server]
	if !ok {
		return nil
	}
	names := make([]string, 0, len(e.players))
	for name := range e.players {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Snapshot returns the state of every known server in configuration order.
func (t *StatusTracker) Snapshot() []model.ServerState {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]model.ServerState, 0, len(t.order))
	for _, name := range t.order {
		e := t.servers[name]
		out = append(out, model.ServerState{
			Name:       name,
			Online:     e.online,
			Players:    len(e.players),
			MaxPlayers: e.maxPlayers,
		})
	}
	return out
}
