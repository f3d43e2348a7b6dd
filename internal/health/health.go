// Package health provides a registry of named subsystem health checkers
// and the RPC reachability check run per network.
package health

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Status represents the health of a single subsystem.
type Status struct {
	Name    string `json:"name"`
	Healthy bool   `json:"healthy"`
	Detail  string `json:"detail,omitempty"`
}

// Checker is a function that checks the health of a subsystem.
type Checker func(ctx context.Context) Status

// Registry holds named health checkers and runs them on demand.
type Registry struct {
	mu       sync.RWMutex
	checkers []namedChecker
}

type namedChecker struct {
	name  string
	check Checker
}

// NewRegistry creates a new health check registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds a named health checker.
func (r *Registry) Register(name string, check Checker) {
	r.mu.Lock()
	r.checkers = append(r.checkers, namedChecker{name: name, check: check})
	r.mu.Unlock()
}

// CheckAll runs all registered checkers and returns the aggregate health
// status plus individual subsystem results.
func (r *Registry) CheckAll(ctx context.Context) (healthy bool, statuses []Status) {
	r.mu.RLock()
	checkers := make([]namedChecker, len(r.checkers))
	copy(checkers, r.checkers)
	r.mu.RUnlock()

	healthy = true
	statuses = make([]Status, len(checkers))

	for i, nc := range checkers {
		statuses[i] = nc.check(ctx)
		if !statuses[i].Healthy {
			healthy = false
		}
	}

	return healthy, statuses
}

// HeadReader reads the head block of one network.
type HeadReader interface {
	BlockNumber(ctx context.Context) (uint64, error)
}

// ClientSource resolves the client of a chain id.
type ClientSource func(ctx context.Context, chainID int64) (HeadReader, error)

// BreakerState reports the circuit state of a network.
type BreakerState func(network string) string

// RPCChecker reports a network healthy when its node answers a head query
// within timeout. The circuit state is included in the detail.
func RPCChecker(name string, chainID int64, clients ClientSource, breaker BreakerState, timeout time.Duration) Checker {
	return func(ctx context.Context) Status {
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		circuit := "closed"
		if breaker != nil {
			circuit = breaker(name)
		}

		client, err := clients(ctx, chainID)
		if err != nil {
			return Status{Name: name, Healthy: false, Detail: fmt.Sprintf("dial: %v (circuit %s)", err, circuit)}
		}
		head, err := client.BlockNumber(ctx)
		if err != nil {
			return Status{Name: name, Healthy: false, Detail: fmt.Sprintf("%v (circuit %s)", err, circuit)}
		}
		return Status{Name: name, Healthy: true, Detail: fmt.Sprintf("block %d (circuit %s)", head, circuit)}
	}
}
