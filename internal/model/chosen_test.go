package model

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestChosenOrdinal(t *testing.T) {
	c := Chosen(3, 2)
	require.InDelta(t, 3.02, float64(c), 1e-12)
	require.True(t, c.IsChosen())

	require.False(t, NotChosenYet.IsChosen())
	require.False(t, Rejected.IsChosen())

	// later iterations and sub-iterations order after earlier ones
	require.Less(t, float64(Chosen(1, 5)), float64(Chosen(2, 0)))
	require.Less(t, float64(Chosen(2, 1)), float64(Chosen(2, 2)))
}

func TestChosenString(t *testing.T) {
	require.Equal(t, "not-chosen-yet", NotChosenYet.String())
	require.Equal(t, "rejected", Rejected.String())
	require.Equal(t, "chosen@2.01", Chosen(2, 1).String())
}

func TestDirectionDerivesOutbound(t *testing.T) {
	r := Request{Direction: Outbound}
	require.True(t, r.Outbound())
	r.Direction = Inbound
	require.False(t, r.Outbound())
	require.Equal(t, "INBOUND", Inbound.String())
	require.Equal(t, "OUTBOUND", Outbound.String())
}
