package gather

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryReturnsSameClientPerHost(t *testing.T) {
	reg := NewRegistry()

	first, err := reg.GetOrCreate("192.168.0.1", "one")
	require.NoError(t, err)
	second, err := reg.GetOrCreate("192.168.0.1", "two")
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, "one", second.password, "first password wins")
	assert.Equal(t, 1, reg.Len())
}

func TestRegistrySeparatesHosts(t *testing.T) {
	reg := NewRegistry()

	a, err := reg.GetOrCreate("192.168.0.1", "pw")
	require.NoError(t, err)
	b, err := reg.GetOrCreate("192.168.1.1", "pw")
	require.NoError(t, err)

	assert.NotSame(t, a, b)
	assert.Equal(t, "192.168.1.1", b.Host())
	assert.Equal(t, 2, reg.Len())
}

func TestRegistryRejectsInvalidHost(t *testing.T) {
	reg := NewRegistry()

	_, err := reg.GetOrCreate("", "pw")
	assert.Error(t, err)
	assert.Equal(t, 0, reg.Len())
}

func TestRegistryAppliesOptions(t *testing.T) {
	reg := NewRegistry(WithTimeout(3 * time.Second))

	g, err := reg.GetOrCreate("router.lan", "pw")
	require.NoError(t, err)
	assert.Equal(t, 3*time.Second, g.client.Timeout)
}

func TestRegistryConcurrentFirstAccess(t *testing.T) {
	reg := NewRegistry()

	const workers = 32
	clients := make([]*Gatherer, workers)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			g, err := reg.GetOrCreate("10.0.0.1", "pw")
			assert.NoError(t, err)
			clients[i] = g
		}(i)
	}
	wg.Wait()

	for _, g := range clients {
		assert.Same(t, clients[0], g)
	}
	assert.Equal(t, 1, reg.Len())
}
