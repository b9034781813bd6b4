package manufacturing

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestComponentRequired(t *testing.T) {
	require.InDelta(t, 5.5, Component{Quantity: 0.5, WastePercent: 10}.Required(10), 1e-9)
	require.InDelta(t, 3, Component{Quantity: 1.5}.Required(2), 1e-9)
	require.InDelta(t, 0, Component{Quantity: 2, WastePercent: 50}.Required(0), 1e-9)
}

func TestInsufficientMaterialMessage(t *testing.T) {
	err := &InsufficientMaterialError{ProductID: 3, Name: "Flour", Required: 5.5, Available: 5}
	require.Equal(t, "manufacturing: insufficient Flour: required 5.50, available 5.00, short 0.50", err.Error())
	require.ErrorIs(t, err, ErrInsufficientMaterial)
}
