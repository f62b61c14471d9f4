package health

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pingFunc func(context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

type countFunc func() (uint64, error)

func (f countFunc) Count() (uint64, error) { return f() }

func TestCheck_AllHealthy(t *testing.T) {
	c := &Checker{
		Store:    pingFunc(func(context.Context) error { return nil }),
		Index:    countFunc(func() (uint64, error) { return 12, nil }),
		DataPath: t.TempDir(),
		Clients:  func() int { return 1 },
	}

	r := c.Check(context.Background())

	require.Len(t, r.Components, 4)
	assert.Equal(t, Healthy, r.Components["database"].Status)
	assert.Equal(t, "12 documents", r.Components["search"].Message)
	assert.Equal(t, "1 connected client", r.Components["sse"].Message)
	assert.Contains(t, r.Components["disk"].Message, "MiB free")
}

func TestCheck_StoreDownIsUnhealthy(t *testing.T) {
	c := &Checker{
		Store:   pingFunc(func(context.Context) error { return errors.New("closed") }),
		Index:   countFunc(func() (uint64, error) { return 0, errors.New("closed") }),
		Clients: func() int { return 0 },
	}

	r := c.Check(context.Background())

	assert.Equal(t, Unhealthy, r.Status)
	assert.Equal(t, Degraded, r.Components["search"].Status)
}

func TestCheck_NothingConfiguredIsDegraded(t *testing.T) {
	r := (&Checker{}).Check(context.Background())

	assert.Equal(t, Degraded, r.Status)
	assert.Equal(t, "database not configured", r.Components["database"].Message)
}
