// Package health reports the state of the server's components.
package health

import (
	"context"
	"fmt"
	"time"
)

// Status is a component or overall health state.
type Status string

const (
	Healthy   Status = "healthy"
	Degraded  Status = "degraded"
	Unhealthy Status = "unhealthy"
)

// lowDiskBytes marks the data directory degraded below this much free space.
const lowDiskBytes = 256 << 20

// Component describes the health of a single component.
type Component struct {
	Status  Status `json:"status" doc:"Component status: healthy, degraded, or unhealthy"`
	Latency string `json:"latency,omitempty" doc:"Response time for this component"`
	Message string `json:"message,omitempty" doc:"Additional status information"`
}

// Report is the overall health with per-component detail.
type Report struct {
	Status     Status               `json:"status" doc:"Overall status: healthy, degraded, or unhealthy"`
	Components map[string]Component `json:"components" doc:"Individual component statuses"`
}

// Pinger is implemented by the store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Counter is implemented by the search index.
type Counter interface {
	Count() (uint64, error)
}

// Checker probes the configured components. Nil fields are reported as
// not configured.
type Checker struct {
	Store    Pinger
	Index    Counter
	DataPath string
	Clients  func() int
}

// Check runs every probe.
func (c *Checker) Check(ctx context.Context) Report {
	r := Report{Status: Healthy, Components: make(map[string]Component, 4)}
	r.add("database", c.checkStore(ctx))
	r.add("search", c.checkIndex())
	r.add("disk", c.checkDisk())
	r.add("sse", c.checkClients())
	return r
}

func (r *Report) add(name string, comp Component) {
	r.Components[name] = comp
	switch comp.Status {
	case Unhealthy:
		r.Status = Unhealthy
	case Degraded:
		if r.Status == Healthy {
			r.Status = Degraded
		}
	}
}

func (c *Checker) checkStore(ctx context.Context) Component {
	if c.Store == nil {
		return Component{Status: Degraded, Message: "database not configured"}
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	start := time.Now()
	err := c.Store.Ping(ctx)
	latency := time.Since(start).String()
	if err != nil {
		return Component{Status: Unhealthy, Latency: latency, Message: "database unreachable"}
	}
	return Component{Status: Healthy, Latency: latency}
}

func (c *Checker) checkIndex() Component {
	if c.Index == nil {
		return Component{Status: Healthy, Message: "full-text search disabled"}
	}
	start := time.Now()
	n, err := c.Index.Count()
	latency := time.Since(start).String()
	if err != nil {
		return Component{Status: Degraded, Latency: latency, Message: "search index unreachable"}
	}
	return Component{Status: Healthy, Latency: latency, Message: fmt.Sprintf("%d documents", n)}
}

func (c *Checker) checkDisk() Component {
	if c.DataPath == "" {
		return Component{Status: Healthy, Message: "no data directory"}
	}
	usage, err := Disk(c.DataPath)
	if err != nil {
		return Component{Status: Degraded, Message: err.Error()}
	}
	msg := fmt.Sprintf("%d MiB free of %d MiB", usage.FreeBytes>>20, usage.TotalBytes>>20)
	if usage.FreeBytes < lowDiskBytes {
		return Component{Status: Degraded, Message: msg}
	}
	return Component{Status: Healthy, Message: msg}
}

func (c *Checker) checkClients() Component {
	if c.Clients == nil {
		return Component{Status: Degraded, Message: "event stream not configured"}
	}
	switch n := c.Clients(); n {
	case 1:
		return Component{Status: Healthy, Message: "1 connected client"}
	default:
		return Component{Status: Healthy, Message: fmt.Sprintf("%d connected clients", n)}
	}
}
