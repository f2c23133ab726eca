package pipeline

import (
	"context"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"alertagent/internal/alert"
)

// Check probes one dependency.
type Check func(ctx context.Context) alert.ComponentHealth

// PingCheck adapts a ping function into a Check.
func PingCheck(name string, ping func(ctx context.Context) error) Check {
	return func(ctx context.Context) alert.ComponentHealth {
		start := time.Now()
		h := alert.ComponentHealth{Name: name, Status: alert.HealthHealthy, CheckedAt: start.UTC()}
		if err := ping(ctx); err != nil {
			h.Status = alert.HealthUnhealthy
			h.Message = err.Error()
		}
		h.Latency = time.Since(start)
		return h
	}
}

// ConfigCheck reports healthy when ok, unknown with msg otherwise.
func ConfigCheck(name string, ok bool, msg string) Check {
	return func(context.Context) alert.ComponentHealth {
		h := alert.ComponentHealth{Name: name, Status: alert.HealthHealthy, CheckedAt: time.Now().UTC()}
		if !ok {
			h.Status = alert.HealthUnknown
			h.Message = msg
		}
		return h
	}
}

// Health runs every check concurrently, each bounded by 10 seconds.
func (p *Pipeline) Health(ctx context.Context) alert.HealthCheck {
	var (
		mu         sync.Mutex
		components []alert.ComponentHealth
		g          errgroup.Group
	)
	for _, check := range p.deps.Checks {
		g.Go(func() error {
			cctx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			h := check(cctx)
			mu.Lock()
			components = append(components, h)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	sort.Slice(components, func(i, j int) bool { return components[i].Name < components[j].Name })
	return alert.NewHealthCheck(p.settings.Version, components)
}
