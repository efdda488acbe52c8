package simclient

import (
	"context"
	"database/sql"
	"fmt"
	"sort"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/dkazakov/simstack/internal/stack"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// Clients holds the network handles scenarios use against the ready
// stack: one gRPC connection per RPC service and one database pool per
// SQL service. Everything dials lazily; nothing here blocks on connect.
type Clients struct {
	conns map[string]*grpc.ClientConn
	dbs   map[string]*sql.DB
}

// Dial builds clients for every service in the registry that speaks a
// protocol scenarios can call.
func Dial(registry *stack.Registry) (*Clients, error) {
	c := &Clients{
		conns: make(map[string]*grpc.ClientConn),
		dbs:   make(map[string]*sql.DB),
	}

	for _, desc := range registry.Descriptors() {
		switch desc.Health {
		case stack.HealthRPCPing:
			conn, err := grpc.NewClient(desc.Addr(), grpc.WithTransportCredentials(insecure.NewCredentials()))
			if err != nil {
				_ = c.Close()
				return nil, fmt.Errorf("grpc client for %s: %w", desc.Name, err)
			}
			c.conns[desc.Name] = conn
		case stack.HealthSQLPing:
			dsn := desc.Target
			if dsn == "" {
				dsn = fmt.Sprintf("postgres://postgres:postgres@%s/postgres?sslmode=disable", desc.Addr())
			}
			db, err := sql.Open("pgx", dsn)
			if err != nil {
				_ = c.Close()
				return nil, fmt.Errorf("sql pool for %s: %w", desc.Name, err)
			}
			c.dbs[desc.Name] = db
		}
	}

	return c, nil
}

// RPCServices lists services reachable over gRPC, sorted by name.
func (c *Clients) RPCServices() []string {
	names := make([]string, 0, len(c.conns))
	for name := range c.conns {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SQLServices lists services with a database pool, sorted by name.
func (c *Clients) SQLServices() []string {
	names := make([]string, 0, len(c.dbs))
	for name := range c.dbs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Conn returns the gRPC connection for the named service.
func (c *Clients) Conn(service string) (*grpc.ClientConn, bool) {
	conn, ok := c.conns[service]
	return conn, ok
}

// DB returns the database pool for the named service.
func (c *Clients) DB(service string) (*sql.DB, bool) {
	db, ok := c.dbs[service]
	return db, ok
}

// Ping performs one gRPC health check against the named service.
func (c *Clients) Ping(ctx context.Context, service string) error {
	conn, ok := c.conns[service]
	if !ok {
		return fmt.Errorf("no gRPC connection for service %q", service)
	}
	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{})
	if err != nil {
		return fmt.Errorf("ping %s: %w", service, err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		return fmt.Errorf("ping %s: status %s", service, resp.GetStatus())
	}
	return nil
}

// Close releases every connection and pool, returning the first error.
func (c *Clients) Close() error {
	var firstErr error
	for _, conn := range c.conns {
		if err := conn.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	for _, db := range c.dbs {
		if err := db.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
