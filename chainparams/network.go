// Package chainparams carries the per-chain configuration the indexer and
// account engine need: contract addresses, the block the pool was deployed
// at, and fee parameters. Values are threaded explicitly through every
// constructor rather than read from a global.
package chainparams

import "github.com/shieldhaven/engine/fieldtypes"

// Network describes one chain's shielded-pool deployment.
type Network struct {
	Name              string
	ChainID           uint64
	RailgunAddress    fieldtypes.Address
	RelayAdaptAddress fieldtypes.Address
	WETH              fieldtypes.Address
	GlobalStartBlock  uint64
	FeeBasisPoints    uint64
}

// Mainnet returns the chain-1 deployment.
func Mainnet() *Network {
	return &Network{
		Name:              "mainnet",
		ChainID:           1,
		RailgunAddress:    fieldtypes.Address{0xfa, 0x7c, 0x2b, 0xba, 0xff, 0x0c, 0xc8, 0x00, 0x4b, 0xbd, 0x7c, 0x2a, 0xd0, 0xf0, 0xa1, 0xae, 0xb9, 0x29, 0xbd, 0x00},
		RelayAdaptAddress: fieldtypes.Address{0x2f, 0x0c, 0x58, 0x8b, 0x08, 0x3d, 0x35, 0x13, 0x3d, 0x0c, 0x8e, 0x8a, 0x78, 0x6a, 0x37, 0x2a, 0xcb, 0xd2, 0x5e, 0x01},
		WETH:              fieldtypes.Address{0xc0, 0x2a, 0xaa, 0x39, 0xb2, 0x23, 0xfe, 0x8d, 0x0a, 0x0e, 0x5c, 0x4f, 0x27, 0xea, 0xd9, 0x08, 0x3c, 0x75, 0x6c, 0xc2},
		GlobalStartBlock:  14754950,
		FeeBasisPoints:    25,
	}
}

// Sepolia returns the chain-11155111 deployment.
func Sepolia() *Network {
	return &Network{
		Name:              "sepolia",
		ChainID:           11155111,
		RailgunAddress:    fieldtypes.Address{0xb3, 0x54, 0x1a, 0x55, 0x10, 0x27, 0x98, 0x26, 0xfa, 0xbc, 0x80, 0x9c, 0x9a, 0xbd, 0xe1, 0xbf, 0x1d, 0x04, 0x3d, 0x0e},
		RelayAdaptAddress: fieldtypes.Address{0x32, 0x9b, 0x4d, 0x37, 0xe2, 0xea, 0x30, 0x52, 0x08, 0x04, 0x42, 0x44, 0x2e, 0xad, 0x2e, 0xbe, 0xd8, 0x80, 0xe6, 0x2e},
		WETH:              fieldtypes.Address{0xfF, 0xf9, 0x97, 0x6b, 0x1e, 0xf6, 0x62, 0x00, 0x45, 0x31, 0x6d, 0x3c, 0xee, 0xa4, 0x5a, 0x27, 0x6e, 0x17, 0x90, 0x79},
		GlobalStartBlock:  2897143,
		FeeBasisPoints:    25,
	}
}

// ByChainID returns the known network for the given chain id, or nil.
func ByChainID(id uint64) *Network {
	switch id {
	case 1:
		return Mainnet()
	case 11155111:
		return Sepolia()
	default:
		return nil
	}
}

// NormalizeToken maps the native-asset sentinels (the zero address and
// 0xeeee...eeee) to the network's WETH address; any other address passes
// through unchanged.
func (n *Network) NormalizeToken(token fieldtypes.Address) fieldtypes.Address {
	if token == fieldtypes.ZeroAddress || token == fieldtypes.EAddress {
		return n.WETH
	}
	return token
}
