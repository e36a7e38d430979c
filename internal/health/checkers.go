package health

import (
	"context"
	"fmt"
)

// Prober is implemented by providers that expose a dedicated health probe,
// such as the Piper synthesizer client.
type Prober interface {
	Healthy(ctx context.Context) error
}

// Pinger is implemented by database handles such as *pgxpool.Pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Provider returns a [Checker] that probes a speech provider's health
// endpoint under the given name.
func Provider(name string, p Prober) Checker {
	return Checker{
		Name: name,
		Check: func(ctx context.Context) error {
			if err := p.Healthy(ctx); err != nil {
				return fmt.Errorf("probe %s: %w", name, err)
			}
			return nil
		},
	}
}

// Archive returns a [Checker] that pings the turn archive database.
func Archive(db Pinger) Checker {
	return Checker{
		Name: "archive",
		Check: func(ctx context.Context) error {
			if err := db.Ping(ctx); err != nil {
				return fmt.Errorf("ping archive: %w", err)
			}
			return nil
		},
	}
}
