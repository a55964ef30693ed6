// Package clients tracks the PVR backend clients and which of them are
// enabled.
package clients

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/pelletier/go-toml/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// Errors returned by Manager operations.
var (
	ErrClientNotFound  = errors.New("client not found")
	ErrDuplicateClient = errors.New("duplicate client")
	ErrInvalidClient   = errors.New("invalid client")
)

// Client is a PVR backend.
type Client struct {
	ID       string `toml:"id"`
	Name     string `toml:"name"`
	Enabled  bool   `toml:"enabled"`
	Priority int    `toml:"priority"`
}

// entry is the decoded form of a [[clients]] table. Clients are enabled
// unless the table says otherwise.
type entry struct {
	ID       string `toml:"id"`
	Name     string `toml:"name"`
	Enabled  *bool  `toml:"enabled"`
	Priority int    `toml:"priority"`
}

type document struct {
	Clients []entry `toml:"clients"`
}

// Manager holds the set of known clients.
type Manager struct {
	mu      sync.RWMutex
	clients map[string]*Client

	enabled prometheus.Gauge
	logger  *zap.Logger
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the manager logger.
func WithLogger(logger *zap.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithRegisterer publishes the enabled client gauge on reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(m *Manager) {
		if reg == nil {
			return
		}
		m.enabled = promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Namespace: "pvrsettings",
			Name:      "clients_enabled",
			Help:      "Number of enabled PVR clients",
		})
	}
}

// NewManager creates an empty client manager.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		clients: make(map[string]*Client),
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.Named("pvr.clients")
	return m
}

// Add registers a client. An empty ID is replaced by a generated one.
// The stored client is returned.
func (m *Manager) Add(c Client) (Client, error) {
	if c.Name == "" {
		return Client{}, fmt.Errorf("%w: missing name", ErrInvalidClient)
	}
	if c.ID == "" {
		c.ID = uuid.NewString()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.clients[c.ID]; exists {
		return Client{}, fmt.Errorf("%w: %s", ErrDuplicateClient, c.ID)
	}
	stored := c
	m.clients[c.ID] = &stored
	m.updateGaugeLocked()

	m.logger.Debug("client added", zap.String("client", c.ID), zap.String("name", c.Name), zap.Bool("enabled", c.Enabled))
	return c, nil
}

// Remove deletes a client.
func (m *Manager) Remove(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.clients[id]; !exists {
		return fmt.Errorf("%w: %s", ErrClientNotFound, id)
	}
	delete(m.clients, id)
	m.updateGaugeLocked()
	return nil
}

// Enable marks a client enabled.
func (m *Manager) Enable(id string) error {
	return m.setEnabled(id, true)
}

// Disable marks a client disabled.
func (m *Manager) Disable(id string) error {
	return m.setEnabled(id, false)
}

func (m *Manager) setEnabled(id string, enabled bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, exists := m.clients[id]
	if !exists {
		return fmt.Errorf("%w: %s", ErrClientNotFound, id)
	}
	c.Enabled = enabled
	m.updateGaugeLocked()
	return nil
}

// Get returns a copy of the client.
func (m *Manager) Get(id string) (Client, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.clients[id]
	if !ok {
		return Client{}, false
	}
	return *c, true
}

// List returns all clients, highest priority first. Ties are ordered by
// name, then ID.
func (m *Manager) List() []Client {
	m.mu.RLock()
	list := make([]Client, 0, len(m.clients))
	for _, c := range m.clients {
		list = append(list, *c)
	}
	m.mu.RUnlock()

	sort.Slice(list, func(i, j int) bool {
		if list[i].Priority != list[j].Priority {
			return list[i].Priority > list[j].Priority
		}
		if list[i].Name != list[j].Name {
			return list[i].Name < list[j].Name
		}
		return list[i].ID < list[j].ID
	})
	return list
}

// Len returns the number of clients.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.clients)
}

// EnabledClientAmount returns how many clients are enabled.
func (m *Manager) EnabledClientAmount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.enabledLocked()
}

// LoadTOML replaces all clients with the [[clients]] tables in data.
// On error the current clients are kept.
func (m *Manager) LoadTOML(data []byte) error {
	var doc document
	if err := toml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("decoding clients: %w", err)
	}
	return m.replace(doc.Clients)
}

// Load replaces all clients with raw [[clients]] tables as decoded from a
// settings file.
func (m *Manager) Load(entries []map[string]any) error {
	data, err := toml.Marshal(map[string]any{"clients": entries})
	if err != nil {
		return fmt.Errorf("encoding clients: %w", err)
	}
	return m.LoadTOML(data)
}

func (m *Manager) replace(entries []entry) error {
	next := make(map[string]*Client, len(entries))
	for i, e := range entries {
		if e.Name == "" {
			return fmt.Errorf("%w: clients[%d] missing name", ErrInvalidClient, i)
		}
		c := &Client{
			ID:       e.ID,
			Name:     e.Name,
			Enabled:  e.Enabled == nil || *e.Enabled,
			Priority: e.Priority,
		}
		if c.ID == "" {
			c.ID = uuid.NewString()
		}
		if _, exists := next[c.ID]; exists {
			return fmt.Errorf("%w: %s", ErrDuplicateClient, c.ID)
		}
		next[c.ID] = c
	}

	m.mu.Lock()
	m.clients = next
	m.updateGaugeLocked()
	enabled := m.enabledLocked()
	m.mu.Unlock()

	m.logger.Info("clients loaded", zap.Int("clients", len(next)), zap.Int("enabled", enabled))
	return nil
}

func (m *Manager) enabledLocked() int {
	n := 0
	for _, c := range m.clients {
		if c.Enabled {
			n++
		}
	}
	return n
}

func (m *Manager) updateGaugeLocked() {
	if m.enabled != nil {
		m.enabled.Set(float64(m.enabledLocked()))
	}
}
