package cser

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEmpty(t *testing.T) {
	require := require.New(t)
	raw, err := MarshalBinaryAdapter(func(*Writer) error { return nil })
	require.NoError(err)
	require.NoError(UnmarshalBinaryAdapter(raw, func(*Reader) error { return nil }))
}

func TestValues(t *testing.T) {
	require := require.New(t)
	payload := []byte("datos")

	raw, err := MarshalBinaryAdapter(func(w *Writer) error {
		w.U8(7)
		w.U16(0)
		w.U16(math.MaxUint16)
		w.U32(1 << 20)
		w.U64(math.MaxUint64)
		w.U56(0)
		w.I64(-42)
		w.I64(math.MaxInt64)
		w.Bool(true)
		w.Bool(false)
		w.FixedBytes([]byte{1, 2, 3})
		w.SliceBytes(payload)
		w.SliceBytes(nil)
		return nil
	})
	require.NoError(err)

	err = UnmarshalBinaryAdapter(raw, func(r *Reader) error {
		require.Equal(uint8(7), r.U8())
		require.Equal(uint16(0), r.U16())
		require.Equal(uint16(math.MaxUint16), r.U16())
		require.Equal(uint32(1<<20), r.U32())
		require.Equal(uint64(math.MaxUint64), r.U64())
		require.Zero(r.U56())
		require.Equal(int64(-42), r.I64())
		require.Equal(int64(math.MaxInt64), r.I64())
		require.True(r.Bool())
		require.False(r.Bool())
		fixed := make([]byte, 3)
		r.FixedBytes(fixed)
		require.Equal([]byte{1, 2, 3}, fixed)
		require.Equal(payload, r.SliceBytes(MaxAlloc))
		require.Empty(r.SliceBytes(MaxAlloc))
		return nil
	})
	require.NoError(err)
}

func TestUnreadData(t *testing.T) {
	require := require.New(t)
	raw, err := MarshalBinaryAdapter(func(w *Writer) error {
		w.U32(5)
		w.U32(6)
		return nil
	})
	require.NoError(err)

	err = UnmarshalBinaryAdapter(raw, func(r *Reader) error {
		r.U32()
		return nil
	})
	require.ErrorIs(err, ErrNonCanonicalEncoding)
}

func TestMalformed(t *testing.T) {
	require := require.New(t)
	raw, err := MarshalBinaryAdapter(func(w *Writer) error {
		w.U64(1 << 40)
		return nil
	})
	require.NoError(err)

	read := func(r *Reader) error {
		r.U64()
		return nil
	}
	require.ErrorIs(UnmarshalBinaryAdapter(raw[1:], read), ErrMalformedEncoding)
	require.ErrorIs(UnmarshalBinaryAdapter(nil, read), ErrMalformedEncoding)
}

func TestNonCanonicalInteger(t *testing.T) {
	require := require.New(t)
	// the value 1 padded to two bytes
	raw, err := MarshalBinaryAdapter(func(w *Writer) error {
		writeUint64BitCompact(w.BytesW, 1, 2)
		w.BitsW.Write(1, 1)
		return nil
	})
	require.NoError(err)

	err = UnmarshalBinaryAdapter(raw, func(r *Reader) error {
		r.U16()
		return nil
	})
	require.ErrorIs(err, ErrMalformedEncoding)
}

func TestCallbackError(t *testing.T) {
	require := require.New(t)
	custom := errors.New("custom")

	_, err := MarshalBinaryAdapter(func(*Writer) error { return custom })
	require.ErrorIs(err, custom)

	raw, err := MarshalBinaryAdapter(func(*Writer) error { return nil })
	require.NoError(err)
	require.ErrorIs(UnmarshalBinaryAdapter(raw, func(*Reader) error { return custom }), custom)
}

func TestAllocLimit(t *testing.T) {
	require := require.New(t)
	raw, err := MarshalBinaryAdapter(func(w *Writer) error {
		w.SliceBytes(make([]byte, 64))
		return nil
	})
	require.NoError(err)

	err = UnmarshalBinaryAdapter(raw, func(r *Reader) error {
		r.SliceBytes(32)
		return nil
	})
	require.ErrorIs(err, ErrMalformedEncoding)
}
