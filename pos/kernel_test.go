package pos

import (
	"math/big"
	"testing"

	"github.com/btcsuite/btcd/blockchain"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"

	"github.com/barrystyle/datos/inter"
	"github.com/barrystyle/datos/utils/fast"
)

func TestDecodeTarget(t *testing.T) {
	require := require.New(t)

	{
		target, err := DecodeTarget(0x1d00ffff)
		require.NoError(err)
		require.Equal(blockchain.CompactToBig(0x1d00ffff), target)
	}
	{
		_, err := DecodeTarget(0x04923456)
		require.ErrorIs(err, ErrNegativeTarget)
	}
	{
		_, err := DecodeTarget(0xff123456)
		require.ErrorIs(err, ErrTargetOverflow)
	}
	{
		_, err := DecodeTarget(0x22000100)
		require.ErrorIs(err, ErrTargetOverflow)
	}
	{
		_, err := DecodeTarget(0x21010000)
		require.ErrorIs(err, ErrTargetOverflow)
	}
	{
		_, err := DecodeTarget(0x00000000)
		require.ErrorIs(err, ErrZeroTarget)
	}
	{
		// mantissa shifted out entirely
		_, err := DecodeTarget(0x01003456)
		require.ErrorIs(err, ErrZeroTarget)
	}
	{
		target, err := DecodeTarget(0x207fffff)
		require.NoError(err)
		require.Equal(255, target.BitLen())
	}
}

func TestKernelHashPreimage(t *testing.T) {
	require := require.New(t)

	modifier := chainhash.HashH([]byte("modifier"))
	prevout := wire.OutPoint{Hash: chainhash.HashH([]byte("tx")), Index: 7}

	w := fast.NewWriter(nil)
	w.Write(modifier[:])
	w.Write([]byte{0x10, 0x00, 0x00, 0x00})
	w.Write(prevout.Hash[:])
	w.Write([]byte{0x07, 0x00, 0x00, 0x00})
	w.Write([]byte{0x20, 0x00, 0x00, 0x00})
	require.Len(w.Bytes(), kernelPreimageSize)

	require.Equal(chainhash.DoubleHashH(w.Bytes()), KernelHash(modifier, 0x10, prevout, 0x20))
	require.NotEqual(KernelHash(modifier, 0x10, prevout, 0x20), KernelHash(modifier, 0x10, prevout, 0x24))
}

func TestCheckStakeKernelHash(t *testing.T) {
	prev := &inter.BlockIndex{Height: 100, StakeModifier: chainhash.HashH([]byte("m"))}
	prevout := wire.OutPoint{Hash: chainhash.HashH([]byte("coin")), Index: 1}
	const (
		blockFrom = uint32(1000)
		stakeTime = uint32(5000)
		bits      = uint32(0x1c000001) // 2^200
	)

	t.Run("time violation", func(t *testing.T) {
		_, _, err := CheckStakeKernelHash(prev, bits, stakeTime+1, 1, prevout, stakeTime)
		require.ErrorIs(t, err, ErrTimeViolation)
	})

	t.Run("bad target", func(t *testing.T) {
		_, ok, err := CheckStakeKernelHash(prev, 0x04923456, blockFrom, 1, prevout, stakeTime)
		require.ErrorIs(t, err, ErrNegativeTarget)
		require.False(t, ok)
	})

	t.Run("value threshold", func(t *testing.T) {
		require := require.New(t)

		hash := KernelHash(prev.StakeModifier, blockFrom, prevout, stakeTime)
		target := new(big.Int).Lsh(big.NewInt(1), 200)
		// smallest value whose weighted target covers the hash
		need := new(big.Int).Add(blockchain.HashToBig(&hash), new(big.Int).Sub(target, big.NewInt(1)))
		need.Div(need, target)
		minValue := btcutil.Amount(need.Int64())

		got, ok, err := CheckStakeKernelHash(prev, bits, blockFrom, minValue, prevout, stakeTime)
		require.NoError(err)
		require.True(ok)
		require.Equal(hash, got)

		_, ok, err = CheckStakeKernelHash(prev, bits, blockFrom, minValue+1000, prevout, stakeTime)
		require.NoError(err)
		require.True(ok)

		_, ok, err = CheckStakeKernelHash(prev, bits, blockFrom, minValue-1, prevout, stakeTime)
		require.NoError(err)
		require.False(ok)
	})
}

func TestComputeStakeModifier(t *testing.T) {
	require := require.New(t)

	kernel := chainhash.HashH([]byte("kernel"))
	require.Equal(chainhash.Hash{}, ComputeStakeModifier(nil, kernel))

	prev := &inter.BlockIndex{StakeModifier: chainhash.HashH([]byte("prev"))}
	w := fast.NewWriter(nil)
	w.Write(kernel[:])
	w.Write(prev.StakeModifier[:])
	require.Equal(chainhash.DoubleHashH(w.Bytes()), ComputeStakeModifier(prev, kernel))

	other := &inter.BlockIndex{StakeModifier: chainhash.HashH([]byte("other"))}
	require.NotEqual(ComputeStakeModifier(prev, kernel), ComputeStakeModifier(other, kernel))
}
