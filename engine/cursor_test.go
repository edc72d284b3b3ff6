package engine

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFetchSizerNonAdaptiveStaysAtDefault(t *testing.T) {
	f := NewFetchSizer(10, false)
	require.Equal(t, int32(10), f.Next())
	require.Equal(t, int32(10), f.Next())
}

func TestFetchSizerAdaptiveDoublesEachCall(t *testing.T) {
	f := NewFetchSizer(10, true)
	require.Equal(t, int32(10), f.Next())
	require.Equal(t, int32(20), f.Next())
	require.Equal(t, int32(40), f.Next())
}

func TestFetchSizerObserveBatchCapsByRowSize(t *testing.T) {
	f := NewFetchSizer(10, true)
	// Large rows (1 MiB each) should push the cap down near the base.
	f.ObserveBatch(10, 10<<20)
	n := f.Next()
	require.LessOrEqual(t, n, int32(20))
	require.GreaterOrEqual(t, n, int32(10))
}

func TestFetchSizerDefaultsToOneWhenGivenNonPositiveSize(t *testing.T) {
	f := NewFetchSizer(0, false)
	require.Equal(t, int32(1), f.Next())
}
