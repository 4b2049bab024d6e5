package health

import "context"

// Checker verifies one dependency's availability.
type Checker interface {
	HealthCheck(ctx context.Context) error
}

// Pinger checks the shared rate window store.
type Pinger interface {
	Ping(ctx context.Context) error
}
