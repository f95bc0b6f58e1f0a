// Package fast provides append-only byte writers and cursor readers for
// fixed-layout encodings such as storage node records and kernel preimages.
//
// Readers do not bounds-check: callers verify Remaining() before reading a
// fixed-size structure, or recover from the resulting panic.
package fast

type Reader struct {
	buf    []byte
	offset int
}

type Writer struct {
	buf []byte
}

// NewReader returns a Reader positioned at the start of bb.
func NewReader(bb []byte) *Reader {
	return &Reader{buf: bb}
}

// NewWriter returns a Writer appending to bb. Pass a zero-length slice with
// capacity to avoid reallocation.
func NewWriter(bb []byte) *Writer {
	return &Writer{buf: bb}
}

func (b *Writer) WriteByte(v byte) {
	b.buf = append(b.buf, v)
}

func (b *Writer) Write(v []byte) {
	b.buf = append(b.buf, v...)
}

// WriteUint32LE appends v in little-endian order.
func (b *Writer) WriteUint32LE(v uint32) {
	b.buf = append(b.buf, byte(v), byte(v>>8), byte(v>>16), byte(v>>24))
}

// WriteUint64LE appends v in little-endian order.
func (b *Writer) WriteUint64LE(v uint64) {
	b.WriteUint32LE(uint32(v))
	b.WriteUint32LE(uint32(v >> 32))
}

// Bytes returns the accumulated content.
func (b *Writer) Bytes() []byte {
	return b.buf
}

// Read returns the next n bytes. The result aliases the underlying buffer.
func (b *Reader) Read(n int) []byte {
	res := b.buf[b.offset : b.offset+n]
	b.offset += n
	return res
}

func (b *Reader) ReadByte() byte {
	res := b.buf[b.offset]
	b.offset++
	return res
}

// ReadUint32LE consumes four bytes as a little-endian integer.
func (b *Reader) ReadUint32LE() uint32 {
	p := b.Read(4)
	return uint32(p[0]) | uint32(p[1])<<8 | uint32(p[2])<<16 | uint32(p[3])<<24
}

// ReadUint64LE consumes eight bytes as a little-endian integer.
func (b *Reader) ReadUint64LE() uint64 {
	lo := b.ReadUint32LE()
	hi := b.ReadUint32LE()
	return uint64(lo) | uint64(hi)<<32
}

// Position is the number of bytes consumed so far.
func (b *Reader) Position() int {
	return b.offset
}

// Remaining is the number of unread bytes.
func (b *Reader) Remaining() int {
	return len(b.buf) - b.offset
}

// Bytes returns the whole underlying buffer, read or not.
func (b *Reader) Bytes() []byte {
	return b.buf
}

func (b *Reader) Empty() bool {
	return len(b.buf) == b.offset
}
