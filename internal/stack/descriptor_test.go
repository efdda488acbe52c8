package stack

import (
	"testing"
	"time"
)

func TestNewRegistryValidation(t *testing.T) {
	base := ServiceDescriptor{
		Name:   "db",
		Image:  "postgres:16",
		Port:   5432,
		Health: HealthSQLPing,
	}

	cases := []struct {
		name   string
		mutate func(*ServiceDescriptor)
	}{
		{name: "empty name", mutate: func(d *ServiceDescriptor) { d.Name = "" }},
		{name: "missing image", mutate: func(d *ServiceDescriptor) { d.Image = "" }},
		{name: "zero port", mutate: func(d *ServiceDescriptor) { d.Port = 0 }},
		{name: "port too large", mutate: func(d *ServiceDescriptor) { d.Port = 70000 }},
		{name: "unknown health", mutate: func(d *ServiceDescriptor) { d.Health = "icmp" }},
		{name: "negative order", mutate: func(d *ServiceDescriptor) { d.StartupOrder = -1 }},
		{name: "negative max wait", mutate: func(d *ServiceDescriptor) { d.MaxWait = -time.Second }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			desc := base
			tc.mutate(&desc)
			if _, err := NewRegistry([]ServiceDescriptor{desc}); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func TestNewRegistryRejectsDuplicateNames(t *testing.T) {
	descriptors := []ServiceDescriptor{
		{Name: "db", Image: "postgres:16", Port: 5432, Health: HealthSQLPing},
		{Name: "db", Image: "postgres:15", Port: 5433, Health: HealthSQLPing},
	}
	if _, err := NewRegistry(descriptors); err == nil {
		t.Fatalf("expected duplicate name error")
	}
}

func TestNewRegistryDefaults(t *testing.T) {
	registry, err := NewRegistry([]ServiceDescriptor{
		{Name: "db", Image: "postgres:16", Port: 5432, Health: HealthSQLPing},
	})
	if err != nil {
		t.Fatalf("NewRegistry error: %v", err)
	}

	desc, ok := registry.Lookup("db")
	if !ok {
		t.Fatalf("expected db in registry")
	}
	if desc.Host != "localhost" {
		t.Fatalf("expected default host, got %q", desc.Host)
	}
	if desc.MaxWait != defaultMaxWait {
		t.Fatalf("expected default max wait, got %s", desc.MaxWait)
	}
	if got := desc.Addr(); got != "localhost:5432" {
		t.Fatalf("unexpected addr %q", got)
	}
}

func TestRegistryOrderingAndRanks(t *testing.T) {
	registry, err := NewRegistry([]ServiceDescriptor{
		{Name: "api", Image: "example/api:1", Port: 8080, Health: HealthHTTP, StartupOrder: 2},
		{Name: "cache", Image: "redis:7", Port: 6379, Health: HealthTCP, StartupOrder: 0},
		{Name: "db", Image: "postgres:16", Port: 5432, Health: HealthSQLPing, StartupOrder: 0},
		{Name: "sim", Image: "example/sim:1", Port: 9090, Health: HealthRPCPing, StartupOrder: 1},
	})
	if err != nil {
		t.Fatalf("NewRegistry error: %v", err)
	}

	var names []string
	for _, d := range registry.Descriptors() {
		names = append(names, d.Name)
	}
	want := []string{"cache", "db", "sim", "api"}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("expected order %v, got %v", want, names)
		}
	}

	ranks := registry.Ranks()
	if len(ranks) != 3 {
		t.Fatalf("expected 3 ranks, got %d", len(ranks))
	}
	if len(ranks[0]) != 2 || ranks[0][0].Name != "cache" || ranks[0][1].Name != "db" {
		t.Fatalf("unexpected first rank: %v", ranks[0])
	}
	if len(ranks[1]) != 1 || ranks[1][0].Name != "sim" {
		t.Fatalf("unexpected second rank: %v", ranks[1])
	}
	if len(ranks[2]) != 1 || ranks[2][0].Name != "api" {
		t.Fatalf("unexpected third rank: %v", ranks[2])
	}
}

func TestRegistryLookupMiss(t *testing.T) {
	registry := testRegistry(t, "db")
	if _, ok := registry.Lookup("missing"); ok {
		t.Fatalf("expected lookup miss")
	}
}
