package alert

import (
	"context"
	"net/http"
)

// Dispatcher fans out alert events to matching webhook configurations.
type Dispatcher struct {
	configs []AlertConfig
	client  *http.Client
}

// NewDispatcher creates a Dispatcher from webhook configurations.
// Returns nil if configs is empty (callers should nil-check).
func NewDispatcher(configs []AlertConfig) *Dispatcher {
	if len(configs) == 0 {
		return nil
	}
	return &Dispatcher{configs: configs, client: httpClient}
}

// Dispatch sends the event to every webhook whose Events list matches and
// returns the delivery errors. It blocks until all deliveries finish so no
// request outlives the caller's decision to exit.
func (d *Dispatcher) Dispatch(ctx context.Context, event AlertEvent) []error {
	if d == nil {
		return nil
	}
	var errs []error
	for _, cfg := range d.configs {
		if !matches(cfg.Events, event) {
			continue
		}
		if err := send(ctx, d.client, cfg, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

func matches(events []string, event AlertEvent) bool {
	if len(events) == 0 {
		return true
	}
	for _, e := range events {
		if e == event.Type {
			return true
		}
	}
	return false
}
