// Package cser is a compact canonical encoding for stored records.
//
// Values are split over two streams: integer payload bytes go to a byte
// stream while their lengths, booleans and signs go to a bit stream. Every
// value has exactly one valid encoding; decoders reject anything padded.
package cser

import (
	"errors"

	"github.com/barrystyle/datos/utils/bits"
	"github.com/barrystyle/datos/utils/fast"
)

var (
	ErrNonCanonicalEncoding = errors.New("non canonical encoding")
	ErrMalformedEncoding    = errors.New("malformed encoding")
	ErrTooLargeAlloc        = errors.New("too large allocation")
)

// MaxAlloc bounds byte slices read by callers that pass no tighter limit.
const MaxAlloc = 100 * 1024

type Writer struct {
	BitsW  *bits.Writer
	BytesW *fast.Writer
}

type Reader struct {
	BitsR  *bits.Reader
	BytesR *fast.Reader
}

func NewWriter() *Writer {
	return &Writer{
		BitsW:  bits.NewWriter(&bits.Array{Bytes: make([]byte, 0, 32)}),
		BytesW: fast.NewWriter(make([]byte, 0, 200)),
	}
}

// writeUint64Compact writes 7 bits per byte, low group first; the high bit
// marks the final byte.
func writeUint64Compact(bytesW *fast.Writer, v uint64) {
	for {
		chunk := byte(v & 0x7f)
		v >>= 7
		if v == 0 {
			bytesW.WriteByte(chunk | 0x80)
			return
		}
		bytesW.WriteByte(chunk)
	}
}

func readUint64Compact(bytesR *fast.Reader) uint64 {
	var v uint64
	for i := 0; ; i++ {
		chunk := bytesR.ReadByte()
		word := uint64(chunk & 0x7f)
		v |= word << (7 * i)
		if chunk&0x80 != 0 {
			if i > 0 && word == 0 {
				panic(ErrNonCanonicalEncoding)
			}
			return v
		}
	}
}

// writeUint64BitCompact writes v little-endian in as few bytes as possible,
// but no fewer than minSize, and returns the byte count.
func writeUint64BitCompact(bytesW *fast.Writer, v uint64, minSize int) (size int) {
	for size < minSize || v != 0 {
		bytesW.WriteByte(byte(v))
		size++
		v >>= 8
	}
	return size
}

func readUint64BitCompact(bytesR *fast.Reader, size int) uint64 {
	var v uint64
	buf := bytesR.Read(size)
	for i, b := range buf {
		v |= uint64(b) << uint(8*i)
	}
	if size > 1 && buf[size-1] == 0 {
		panic(ErrNonCanonicalEncoding)
	}
	return v
}

// writeU64_bits stores the payload length, less minSize, in sizeBits bits.
func (w *Writer) writeU64_bits(minSize int, sizeBits int, v uint64) {
	size := writeUint64BitCompact(w.BytesW, v, minSize)
	w.BitsW.Write(sizeBits, uint(size-minSize))
}

func (r *Reader) readU64_bits(minSize int, sizeBits int) uint64 {
	size := int(r.BitsR.Read(sizeBits)) + minSize
	return readUint64BitCompact(r.BytesR, size)
}

func (w *Writer) U8(v uint8) { w.BytesW.WriteByte(v) }
func (r *Reader) U8() uint8  { return r.BytesR.ReadByte() }

func (w *Writer) U16(v uint16) { w.writeU64_bits(1, 1, uint64(v)) }
func (r *Reader) U16() uint16  { return uint16(r.readU64_bits(1, 1)) }

func (w *Writer) U32(v uint32) { w.writeU64_bits(1, 2, uint64(v)) }
func (r *Reader) U32() uint32  { return uint32(r.readU64_bits(1, 2)) }

func (w *Writer) U64(v uint64) { w.writeU64_bits(1, 3, v) }
func (r *Reader) U64() uint64  { return r.readU64_bits(1, 3) }

// U56 writes values below 2^56 with a zero-length form for 0.
func (w *Writer) U56(v uint64) {
	const max = 1<<(8*7) - 1
	if v > max {
		panic("cser: U56 overflow")
	}
	w.writeU64_bits(0, 3, v)
}

func (r *Reader) U56() uint64 { return r.readU64_bits(0, 3) }

// I64 writes the sign as a bit and the magnitude as U64.
func (w *Writer) I64(v int64) {
	w.Bool(v < 0)
	if v < 0 {
		w.U64(uint64(-v))
		return
	}
	w.U64(uint64(v))
}

func (r *Reader) I64() int64 {
	neg := r.Bool()
	abs := r.U64()
	if neg && abs == 0 {
		panic(ErrNonCanonicalEncoding)
	}
	if neg {
		return -int64(abs)
	}
	return int64(abs)
}

func (w *Writer) Bool(v bool) {
	var b uint
	if v {
		b = 1
	}
	w.BitsW.Write(1, b)
}

func (r *Reader) Bool() bool { return r.BitsR.Read(1) != 0 }

func (w *Writer) FixedBytes(v []byte) { w.BytesW.Write(v) }

func (r *Reader) FixedBytes(v []byte) { copy(v, r.BytesR.Read(len(v))) }

// SliceBytes writes a U56 length followed by v.
func (w *Writer) SliceBytes(v []byte) {
	w.U56(uint64(len(v)))
	w.FixedBytes(v)
}

func (r *Reader) SliceBytes(maxLen int) []byte {
	size := r.U56()
	if size > uint64(maxLen) {
		panic(ErrTooLargeAlloc)
	}
	buf := make([]byte, size)
	r.FixedBytes(buf)
	return buf
}
