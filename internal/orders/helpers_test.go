package orders

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func requireProduct(t *testing.T, want, got Product) {
	t.Helper()

	require.Equal(t, want.Name, got.Name)
	require.Equal(t, want.Quantity, got.Quantity, "quantity")
	require.Equal(t, want.Price, got.Price, "price")
	require.Equal(t, want.Color, got.Color)
	require.Equal(t, want.Size, got.Size)
}
