package request

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoff_ExponentialGrowth(t *testing.T) {
	bo := newBackoff(500*time.Millisecond, 2.0)

	d1 := bo.Next()
	d2 := bo.Next()
	d3 := bo.Next()

	// Jitter scales each delay into [0.5x, 1.5x) of the nominal value.
	assert.GreaterOrEqual(t, d1, 250*time.Millisecond)
	assert.Less(t, d1, 750*time.Millisecond)

	assert.GreaterOrEqual(t, d2, 500*time.Millisecond)
	assert.Less(t, d2, 1500*time.Millisecond)

	assert.GreaterOrEqual(t, d3, 1*time.Second)
	assert.Less(t, d3, 3*time.Second)
}

func TestBackoff_DefaultsOnZeroValues(t *testing.T) {
	bo := newBackoff(0, 0)

	d := bo.Next()
	assert.GreaterOrEqual(t, d, DefaultBackoffBase/2)
	assert.Less(t, d, DefaultBackoffBase+DefaultBackoffBase/2)
}

func TestError_Retriable(t *testing.T) {
	assert.True(t, NewNetworkError("unreachable").Retriable())
	assert.True(t, NewServerError(503, "busy").Retriable())
	assert.False(t, NewClientError(400, "bad request").Retriable())
}

func TestError_Helpers(t *testing.T) {
	assert.True(t, IsRetriable(NewServerError(500, "boom")))
	assert.False(t, IsRetriable(NewClientError(404, "gone")))
	assert.False(t, IsRetriable(nil))

	assert.True(t, IsClientError(NewClientError(422, "invalid")))
	assert.False(t, IsClientError(NewNetworkError("down")))

	assert.True(t, IsNetworkError(NewNetworkError("down")))
	assert.False(t, IsNetworkError(NewServerError(500, "boom")))
}
