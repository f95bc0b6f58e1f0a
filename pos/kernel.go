// Package pos implements proof-of-stake minting for datos: the stake kernel
// check, the replay guard for kernel outpoints, coin selection and coinstake
// construction over a wallet, block signing, and the minter loop that ties
// them to the chain tip.
package pos

import (
	"errors"
	"math/big"

	"github.com/btcsuite/btcd/blockchain"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"

	"github.com/barrystyle/datos/inter"
	"github.com/barrystyle/datos/utils/fast"
)

var (
	ErrNegativeTarget = errors.New("kernel target is negative")
	ErrTargetOverflow = errors.New("kernel target overflows 256 bits")
	ErrZeroTarget     = errors.New("kernel target is zero")
	ErrTimeViolation  = errors.New("kernel time precedes block-from time")
)

// kernelPreimageSize is modifier(32) + blockFromTime(4) + prevout(36) + time(4).
const kernelPreimageSize = chainhash.HashSize + 4 + chainhash.HashSize + 4 + 4

// DecodeTarget expands compact bits into a 256-bit target, rejecting
// negative, overflowing, or zero encodings.
func DecodeTarget(bits uint32) (*big.Int, error) {
	size := bits >> 24
	word := bits & 0x007fffff
	if word != 0 && bits&0x00800000 != 0 {
		return nil, ErrNegativeTarget
	}
	if word != 0 && (size > 34 || (word > 0xff && size > 33) || (word > 0xffff && size > 32)) {
		return nil, ErrTargetOverflow
	}
	target := blockchain.CompactToBig(bits)
	if target.Sign() <= 0 {
		return nil, ErrZeroTarget
	}
	return target, nil
}

// KernelHash is SHA256d(modifier || blockFromTime || prevout.hash ||
// prevout.index || time), integers little-endian.
func KernelHash(modifier chainhash.Hash, blockFromTime uint32, prevout wire.OutPoint, t uint32) chainhash.Hash {
	w := fast.NewWriter(make([]byte, 0, kernelPreimageSize))
	w.Write(modifier[:])
	w.WriteUint32LE(blockFromTime)
	w.Write(prevout.Hash[:])
	w.WriteUint32LE(prevout.Index)
	w.WriteUint32LE(t)
	return chainhash.DoubleHashH(w.Bytes())
}

// CheckStakeKernelHash tests whether prevout, staked at time t, meets the
// value-weighted target. The returned hash is valid whenever err is nil.
func CheckStakeKernelHash(prev *inter.BlockIndex, bits uint32, blockFromTime uint32,
	value btcutil.Amount, prevout wire.OutPoint, t uint32) (chainhash.Hash, bool, error) {

	if t < blockFromTime {
		return chainhash.Hash{}, false, ErrTimeViolation
	}
	target, err := DecodeTarget(bits)
	if err != nil {
		return chainhash.Hash{}, false, err
	}

	hash := KernelHash(prev.StakeModifier, blockFromTime, prevout, t)

	weighted := new(big.Int).Mul(target, big.NewInt(int64(value)))
	return hash, blockchain.HashToBig(&hash).Cmp(weighted) <= 0, nil
}

// ComputeStakeModifier chains the kernel hash of a new block onto its
// parent's modifier. The genesis modifier is zero.
func ComputeStakeModifier(prev *inter.BlockIndex, kernel chainhash.Hash) chainhash.Hash {
	if prev == nil {
		return chainhash.Hash{}
	}
	w := fast.NewWriter(make([]byte, 0, 2*chainhash.HashSize))
	w.Write(kernel[:])
	w.Write(prev.StakeModifier[:])
	return chainhash.DoubleHashH(w.Bytes())
}
