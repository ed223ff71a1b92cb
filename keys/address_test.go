package keys

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAddressRoundTrip(t *testing.T) {
	var spend, view [32]byte
	spend[31] = 0x05
	view[31] = 0x06
	node, err := FromPrivateKeys(spend, view)
	require.NoError(t, err)

	addr, err := AddressFor(node, 1)
	require.NoError(t, err)
	require.Contains(t, addr, AddressHRP)

	decoded, err := Decode(addr)
	require.NoError(t, err)
	require.Equal(t, node.MasterPublic, decoded.MasterPublicKey)
	require.Equal(t, node.ViewingPublic, decoded.ViewingPublic)
	require.EqualValues(t, 1, decoded.ChainID)
}

func TestAddressChainAgnostic(t *testing.T) {
	var spend, view [32]byte
	spend[31] = 0x07
	view[31] = 0x08
	node, err := FromPrivateKeys(spend, view)
	require.NoError(t, err)

	addr, err := AddressFor(node, 0)
	require.NoError(t, err)
	decoded, err := Decode(addr)
	require.NoError(t, err)
	require.EqualValues(t, 0, decoded.ChainID)
}

func TestDecodeRejectsWrongHRP(t *testing.T) {
	_, err := Decode("bc1qar0srrr7xfkvy5l643lydnw9re59gtzzwf5mdq")
	require.ErrorIs(t, err, ErrBadAddress)
}

func TestDecodeRejectsGarbage(t *testing.T) {
	_, err := Decode("not-a-bech32-string")
	require.ErrorIs(t, err, ErrBadAddress)
}
