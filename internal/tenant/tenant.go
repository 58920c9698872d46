// Package tenant holds the static table of salons served by the relay.
package tenant

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrNotFound is returned for tenant ids that are not in the registry.
var ErrNotFound = errors.New("tenant not found")

// Config describes one salon.
type Config struct {
	ID          string `yaml:"id" json:"id"`
	Name        string `yaml:"name" json:"name"`
	Phone       string `yaml:"phone" json:"phone"`
	Port        int    `yaml:"port" json:"port"`
	ClientID    string `yaml:"client_id" json:"client_id"`
	WebhookPath string `yaml:"webhook_path" json:"webhook_path"`
}

// WebhookURL joins the backend base URL with the tenant's webhook path.
// An unset path falls back to /webhook/whatsapp/<id>.
func (c Config) WebhookURL(backend string) string {
	path := c.WebhookPath
	if path == "" {
		path = "/webhook/whatsapp/" + c.ID
	}
	return strings.TrimRight(backend, "/") + path
}

func (c *Config) applyDefaults() {
	if c.ClientID == "" {
		c.ClientID = strings.ReplaceAll(c.ID, "_", "-") + "-client"
	}
	if c.WebhookPath == "" {
		c.WebhookPath = "/webhook/whatsapp/{id}"
	}
	c.WebhookPath = strings.ReplaceAll(c.WebhookPath, "{id}", c.ID)
	if !strings.HasPrefix(c.WebhookPath, "/") {
		c.WebhookPath = "/" + c.WebhookPath
	}
}

// Registry is a read-only, ordered set of tenants.
type Registry struct {
	order []string
	byID  map[string]Config
}

// NewRegistry validates the given configs and builds a registry.
func NewRegistry(configs []Config) (*Registry, error) {
	if len(configs) == 0 {
		return nil, errors.New("no tenants configured")
	}

	r := &Registry{byID: make(map[string]Config, len(configs))}
	ports := make(map[int]string, len(configs))

	for _, c := range configs {
		c.ID = strings.TrimSpace(c.ID)
		if c.ID == "" {
			return nil, errors.New("tenant id is required")
		}
		if _, dup := r.byID[c.ID]; dup {
			return nil, fmt.Errorf("duplicate tenant id %q", c.ID)
		}
		if c.Port < 1 || c.Port > 65535 {
			return nil, fmt.Errorf("tenant %q: port %d out of range", c.ID, c.Port)
		}
		if other, dup := ports[c.Port]; dup {
			return nil, fmt.Errorf("tenant %q: port %d already used by %q", c.ID, c.Port, other)
		}
		if c.Name == "" {
			c.Name = c.ID
		}
		c.applyDefaults()

		ports[c.Port] = c.ID
		r.byID[c.ID] = c
		r.order = append(r.order, c.ID)
	}

	return r, nil
}

// Get returns the tenant with the given id or ErrNotFound.
func (r *Registry) Get(id string) (Config, error) {
	c, ok := r.byID[id]
	if !ok {
		return Config{}, ErrNotFound
	}
	return c, nil
}

// All returns every tenant in declaration order.
func (r *Registry) All() []Config {
	out := make([]Config, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.byID[id])
	}
	return out
}

// Len returns the number of tenants.
func (r *Registry) Len() int { return len(r.order) }

// Defaults returns the built-in salon table.
func Defaults() []Config {
	return []Config{
		{ID: "salon_a", Name: "Downtown Beauty Salon", Phone: "+1234567890", Port: 3005},
		{ID: "salon_b", Name: "Uptown Hair Studio", Phone: "+1234567891", Port: 3006},
		{ID: "salon_c", Name: "Luxury Spa & Salon", Phone: "+1234567892", Port: 3007},
	}
}

// Default builds a registry from Defaults.
func Default() *Registry {
	r, err := NewRegistry(Defaults())
	if err != nil {
		panic(err)
	}
	return r
}

type fileFormat struct {
	Tenants []Config `yaml:"tenants"`
}

// LoadFile reads a YAML tenants file. An empty path yields the defaults.
func LoadFile(path string) (*Registry, error) {
	if path == "" {
		return Default(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read tenants file: %w", err)
	}

	var f fileFormat
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse tenants file: %w", err)
	}

	r, err := NewRegistry(f.Tenants)
	if err != nil {
		return nil, fmt.Errorf("tenants file %s: %w", path, err)
	}
	return r, nil
}
