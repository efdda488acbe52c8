package probe

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/hashicorp/go-retryablehttp"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/dkazakov/simstack/internal/stack"

	// Postgres driver for sql_ping checks.
	_ "github.com/jackc/pgx/v5/stdlib"
)

// checkTCP succeeds once the endpoint accepts a connection. This says
// the process is listening, not that the protocol behind it works.
func checkTCP(ctx context.Context, desc stack.ServiceDescriptor) error {
	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", desc.Addr())
	if err != nil {
		return fmt.Errorf("tcp connect %s: %w", desc.Addr(), err)
	}
	return conn.Close()
}

// checkRPCPing requires a well-formed SERVING response from the gRPC
// health service. Target, when set, names the specific service to check.
func checkRPCPing(ctx context.Context, desc stack.ServiceDescriptor) error {
	conn, err := grpc.NewClient(desc.Addr(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return fmt.Errorf("grpc client %s: %w", desc.Addr(), err)
	}
	defer conn.Close()

	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: desc.Target})
	if err != nil {
		return fmt.Errorf("grpc ping %s: %w", desc.Addr(), err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		return fmt.Errorf("grpc ping %s: status %s", desc.Addr(), resp.GetStatus())
	}
	return nil
}

// checkSQLPing verifies the database answers a trivial query, not just
// that its port is open. Target may carry a full DSN.
func checkSQLPing(ctx context.Context, desc stack.ServiceDescriptor) error {
	dsn := desc.Target
	if dsn == "" {
		dsn = fmt.Sprintf("postgres://postgres:postgres@%s/postgres?sslmode=disable", desc.Addr())
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return fmt.Errorf("sql open %s: %w", desc.Name, err)
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("sql ping %s: %w", desc.Name, err)
	}
	var one int
	if err := db.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
		return fmt.Errorf("sql query %s: %w", desc.Name, err)
	}
	return nil
}

// checkHTTP requires a 2xx from the endpoint. Target may carry the path.
func checkHTTP(ctx context.Context, desc stack.ServiceDescriptor) error {
	path := desc.Target
	if path == "" {
		path = "/"
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	client := retryablehttp.NewClient()
	client.RetryMax = 0
	client.Logger = nil

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, "http://"+desc.Addr()+path, nil)
	if err != nil {
		return fmt.Errorf("http request %s: %w", desc.Name, err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("http get %s: %w", desc.Name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("http get %s: unexpected status %s", desc.Name, resp.Status)
	}
	return nil
}
