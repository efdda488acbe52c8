package harness

import (
	"context"
	"sync"

	"github.com/dkazakov/simstack/internal/scenario"
	"github.com/dkazakov/simstack/internal/simclient"
)

// DefaultSuite is the built-in scenario set: it exercises every RPC
// service and every database the stack exposes without knowing the
// stack's shape in advance.
func DefaultSuite() []scenario.Scenario {
	return []scenario.Scenario{
		{
			ID:  "rpc-services-answer",
			Run: pingAllServices,
		},
		{
			ID:  "rpc-services-answer-concurrently",
			Run: pingAllServicesConcurrently,
		},
		{
			ID:   "db-roundtrip",
			Tags: []string{"db"},
			Run:  databaseRoundtrip,
		},
	}
}

func pingAllServices(ctx context.Context, clients *simclient.Clients) error {
	for _, service := range clients.RPCServices() {
		if err := clients.Ping(ctx, service); err != nil {
			return scenario.Failf("service %s did not answer: %v", service, err)
		}
	}
	return nil
}

// pingAllServicesConcurrently hits every RPC service at once; a server
// that only answers serialized requests fails here.
func pingAllServicesConcurrently(ctx context.Context, clients *simclient.Clients) error {
	services := clients.RPCServices()

	var wg sync.WaitGroup
	var mu sync.Mutex
	var firstErr error
	for _, service := range services {
		wg.Add(1)
		go func(service string) {
			defer wg.Done()
			if err := clients.Ping(ctx, service); err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = scenario.Failf("service %s did not answer concurrently: %v", service, err)
				}
				mu.Unlock()
			}
		}(service)
	}
	wg.Wait()
	return firstErr
}

// databaseRoundtrip writes a row into a scratch table and reads it back
// on every SQL service. Tagged "db": it owns the scratch table while
// it runs.
func databaseRoundtrip(ctx context.Context, clients *simclient.Clients) error {
	for _, service := range clients.SQLServices() {
		db, ok := clients.DB(service)
		if !ok {
			return scenario.Failf("no database pool for %s", service)
		}

		if _, err := db.ExecContext(ctx,
			`CREATE TABLE IF NOT EXISTS simstack_scratch (id SERIAL PRIMARY KEY, payload TEXT NOT NULL)`); err != nil {
			return scenario.Failf("create scratch table on %s: %v", service, err)
		}

		var id int
		if err := db.QueryRowContext(ctx,
			`INSERT INTO simstack_scratch (payload) VALUES ($1) RETURNING id`, "roundtrip").Scan(&id); err != nil {
			return scenario.Failf("insert on %s: %v", service, err)
		}

		var payload string
		if err := db.QueryRowContext(ctx,
			`SELECT payload FROM simstack_scratch WHERE id = $1`, id).Scan(&payload); err != nil {
			return scenario.Failf("select on %s: %v", service, err)
		}
		if payload != "roundtrip" {
			return scenario.Failf("payload mismatch on %s: got %q", service, payload)
		}

		if _, err := db.ExecContext(ctx,
			`DELETE FROM simstack_scratch WHERE id = $1`, id); err != nil {
			return scenario.Failf("cleanup on %s: %v", service, err)
		}
	}
	return nil
}
