package eventdecoder

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/require"

	"github.com/shieldhaven/engine/errs"
)

func TestDecodeShield(t *testing.T) {
	d := New()

	packed, err := d.contract.Events["Shield"].Inputs.Pack(
		big.NewInt(0),
		big.NewInt(0),
		[]*big.Int{big.NewInt(111)},
		[]uint8{0},
		[]common.Address{{0xAA}},
		[]*big.Int{big.NewInt(0)},
		[]*big.Int{big.NewInt(100000000000000000)},
		[][]byte{[]byte("ciphertext-bundle")},
		[]*big.Int{big.NewInt(25)},
	)
	require.NoError(t, err)

	log := gethtypes.Log{
		Topics:      []common.Hash{d.shieldSig},
		Data:        packed,
		BlockNumber: 100,
		Index:       3,
	}

	decoded, err := d.Decode(log)
	require.NoError(t, err)
	require.Equal(t, EventShield, decoded.Kind)
	require.Len(t, decoded.Shield.Commitments, 1)
	require.Equal(t, uint64(100), decoded.BlockNumber)
	require.EqualValues(t, 100000000000000000, decoded.Shield.Commitments[0].Value.Uint64())
	require.Len(t, decoded.Shield.Fees, 1)
}

func TestDecodeTransact(t *testing.T) {
	d := New()

	packed, err := d.contract.Events["Transact"].Inputs.Pack(
		big.NewInt(0),
		big.NewInt(5),
		[]*big.Int{big.NewInt(222), big.NewInt(333)},
		[][]byte{[]byte("ct1"), []byte("ct2")},
	)
	require.NoError(t, err)

	log := gethtypes.Log{
		Topics: []common.Hash{d.transactSig},
		Data:   packed,
	}

	decoded, err := d.Decode(log)
	require.NoError(t, err)
	require.Equal(t, EventTransact, decoded.Kind)
	require.Len(t, decoded.Transact.Hashes, 2)
	require.EqualValues(t, 5, decoded.Transact.StartPosition)
}

func TestDecodeNullified(t *testing.T) {
	d := New()

	packed, err := d.contract.Events["Nullified"].Inputs.Pack(
		big.NewInt(2),
		[]*big.Int{big.NewInt(1), big.NewInt(2), big.NewInt(3)},
	)
	require.NoError(t, err)

	log := gethtypes.Log{
		Topics: []common.Hash{d.nullifiedSig},
		Data:   packed,
	}

	decoded, err := d.Decode(log)
	require.NoError(t, err)
	require.Equal(t, EventNullified, decoded.Kind)
	require.Len(t, decoded.Nullified.Nullifiers, 3)
	require.EqualValues(t, 2, decoded.Nullified.TreeNumber)
}

func TestDecodeUnknownTopicFails(t *testing.T) {
	d := New()
	log := gethtypes.Log{Topics: []common.Hash{{0xFF}}}
	_, err := d.Decode(log)
	require.ErrorIs(t, err, errs.ErrDecode)
}

func TestDecodeEmptyTopicsFails(t *testing.T) {
	d := New()
	_, err := d.Decode(gethtypes.Log{})
	require.ErrorIs(t, err, errs.ErrDecode)
}
