package alloc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllocator_AllocWithinLimit(t *testing.T) {
	a := New(1024)
	require.NoError(t, a.Alloc(512))
	assert.EqualValues(t, 512, a.Used())
}

func TestAllocator_AllocExceedsLimit(t *testing.T) {
	a := New(1024)
	require.NoError(t, a.Alloc(900))

	err := a.Alloc(200)
	require.Error(t, err)
	var limitErr *LimitExceededError
	require.ErrorAs(t, err, &limitErr)
	// the counter must not move on a failed allocation
	assert.EqualValues(t, 900, a.Used())
}

func TestAllocator_FreeNeverUnderflows(t *testing.T) {
	a := New(1024)
	require.NoError(t, a.Alloc(100))
	a.Free(100)
	a.Free(500) // no matching alloc; must clamp instead of going negative
	assert.EqualValues(t, 0, a.Used())
}

func TestAllocator_AllocFreeRoundTrip(t *testing.T) {
	a := New(0) // unlimited
	tests := []struct {
		name string
		n    int
	}{
		{"small", 16},
		{"medium", 4096},
		{"large", 1 << 20},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NoError(t, a.Alloc(tt.n))
			assert.EqualValues(t, tt.n, a.Used())
			a.Free(tt.n)
			assert.EqualValues(t, 0, a.Used())
		})
	}
}

func TestAllocator_Unlimited(t *testing.T) {
	a := New(0)
	require.NoError(t, a.Alloc(1<<30))
	assert.EqualValues(t, 1<<30, a.Used())
}

func TestAllocator_TryResize(t *testing.T) {
	a := New(100)
	require.NoError(t, a.Alloc(50))

	require.NoError(t, a.TryResize(50, 80))
	assert.EqualValues(t, 80, a.Used())

	err := a.TryResize(80, 200)
	require.Error(t, err)
	assert.EqualValues(t, 80, a.Used())

	require.NoError(t, a.TryResize(80, 20))
	assert.EqualValues(t, 20, a.Used())
}
