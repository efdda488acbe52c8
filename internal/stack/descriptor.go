package stack

import (
	"fmt"
	"sort"
	"time"
)

// HealthCheck identifies how a service's readiness is verified.
type HealthCheck string

const (
	HealthTCP     HealthCheck = "tcp"
	HealthRPCPing HealthCheck = "rpc_ping"
	HealthSQLPing HealthCheck = "sql_ping"
	HealthHTTP    HealthCheck = "http"
)

const defaultMaxWait = 90 * time.Second

// ServiceDescriptor is the immutable definition of one dependent service.
type ServiceDescriptor struct {
	Name         string
	Image        string
	Host         string
	Port         int
	TargetPort   int
	Health       HealthCheck
	StartupOrder int
	MaxWait      time.Duration
	Env          []string
	// Target carries check-specific addressing: a DSN for sql_ping or a
	// URL path for http. Empty means the check builds its own default.
	Target string
}

// Addr returns the host:port endpoint the health check connects to.
func (d ServiceDescriptor) Addr() string {
	return fmt.Sprintf("%s:%d", d.Host, d.Port)
}

// Registry holds validated service descriptors sorted by startup order.
type Registry struct {
	descriptors []ServiceDescriptor
}

// NewRegistry validates descriptors and returns a registry ordered by
// ascending StartupOrder (ties broken by name for determinism).
func NewRegistry(descriptors []ServiceDescriptor) (*Registry, error) {
	if len(descriptors) == 0 {
		return nil, fmt.Errorf("registry requires at least one service")
	}

	seen := make(map[string]bool, len(descriptors))
	for _, d := range descriptors {
		if d.Name == "" {
			return nil, fmt.Errorf("service with empty name")
		}
		if seen[d.Name] {
			return nil, fmt.Errorf("service %q: duplicate name", d.Name)
		}
		seen[d.Name] = true

		if d.Image == "" {
			return nil, fmt.Errorf("service %q: image is required", d.Name)
		}
		if d.Port <= 0 || d.Port > 65535 {
			return nil, fmt.Errorf("service %q: invalid port %d", d.Name, d.Port)
		}
		switch d.Health {
		case HealthTCP, HealthRPCPing, HealthSQLPing, HealthHTTP:
		default:
			return nil, fmt.Errorf("service %q: unknown health check %q", d.Name, d.Health)
		}
		if d.StartupOrder < 0 {
			return nil, fmt.Errorf("service %q: negative startup order", d.Name)
		}
		if d.MaxWait < 0 {
			return nil, fmt.Errorf("service %q: negative max wait", d.Name)
		}
	}

	ordered := make([]ServiceDescriptor, len(descriptors))
	copy(ordered, descriptors)
	for i := range ordered {
		if ordered[i].Host == "" {
			ordered[i].Host = "localhost"
		}
		if ordered[i].MaxWait == 0 {
			ordered[i].MaxWait = defaultMaxWait
		}
	}
	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].StartupOrder != ordered[j].StartupOrder {
			return ordered[i].StartupOrder < ordered[j].StartupOrder
		}
		return ordered[i].Name < ordered[j].Name
	})

	return &Registry{descriptors: ordered}, nil
}

// Descriptors returns all descriptors in startup order.
func (r *Registry) Descriptors() []ServiceDescriptor {
	out := make([]ServiceDescriptor, len(r.descriptors))
	copy(out, r.descriptors)
	return out
}

// Lookup returns the descriptor for the named service.
func (r *Registry) Lookup(name string) (ServiceDescriptor, bool) {
	for _, d := range r.descriptors {
		if d.Name == name {
			return d, true
		}
	}
	return ServiceDescriptor{}, false
}

// Ranks groups descriptors by StartupOrder, ascending. Services in the
// same rank have no ordering relation and may start concurrently.
func (r *Registry) Ranks() [][]ServiceDescriptor {
	var ranks [][]ServiceDescriptor
	for _, d := range r.descriptors {
		if len(ranks) == 0 || ranks[len(ranks)-1][0].StartupOrder != d.StartupOrder {
			ranks = append(ranks, []ServiceDescriptor{d})
			continue
		}
		ranks[len(ranks)-1] = append(ranks[len(ranks)-1], d)
	}
	return ranks
}
