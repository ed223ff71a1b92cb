package chainparams

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/shieldhaven/engine/fieldtypes"
)

func TestByChainID(t *testing.T) {
	require.Equal(t, "mainnet", ByChainID(1).Name)
	require.Equal(t, "sepolia", ByChainID(11155111).Name)
	require.Nil(t, ByChainID(1337))
}

func TestNormalizeToken(t *testing.T) {
	n := Mainnet()
	require.Equal(t, n.WETH, n.NormalizeToken(fieldtypes.ZeroAddress))
	require.Equal(t, n.WETH, n.NormalizeToken(fieldtypes.EAddress))

	other := fieldtypes.Address{0xAB}
	require.Equal(t, other, n.NormalizeToken(other))
}
