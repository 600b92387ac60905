package stock

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSplitIDsTrimsWhitespace(t *testing.T) {
	require.Equal(t, []string{"a", "b", "c"}, splitIDs("a, b ,c"))
}

func TestSplitIDsDropsEmptyElements(t *testing.T) {
	require.Equal(t, []string{"a", "b"}, splitIDs(",a,, b ,"))
	require.Empty(t, splitIDs(" , ,"))
}
