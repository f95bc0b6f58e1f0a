// Package bits packs small values into a byte slice at bit granularity,
// least significant bit first.
package bits

type (
	// Array holds the packed bytes.
	Array struct {
		Bytes []byte
	}

	// Writer appends values to an Array.
	Writer struct {
		*Array
		bitOffset int // next free bit of the last byte
	}

	// Reader consumes values from an Array.
	Reader struct {
		*Array
		byteOffset int
		bitOffset  int
	}
)

func NewWriter(arr *Array) *Writer {
	return &Writer{Array: arr}
}

func NewReader(arr *Array) *Reader {
	return &Reader{Array: arr}
}

func (a *Writer) byteBitsFree() int {
	return 8 - a.bitOffset
}

func (a *Writer) writeIntoLastByte(v uint) {
	a.Bytes[len(a.Bytes)-1] |= byte(v << a.bitOffset)
}

// zeroTopByteBits keeps the low 8-bits bits of v.
func zeroTopByteBits(v uint, bits int) uint {
	mask := uint(0xff) >> bits
	return v & mask
}

// Write appends the low bits of v.
func (a *Writer) Write(bits int, v uint) {
	if a.bitOffset == 0 {
		a.Bytes = append(a.Bytes, byte(0))
	}
	free := a.byteBitsFree()
	if bits <= free {
		a.writeIntoLastByte(v)
		if bits == free {
			a.bitOffset = 0
		} else {
			a.bitOffset += bits
		}
		return
	}
	a.writeIntoLastByte(zeroTopByteBits(v, a.bitOffset))
	a.bitOffset = 0
	a.Write(bits-free, v>>free)
}

func (a *Reader) byteBitsFree() int {
	return 8 - a.bitOffset
}

// Read consumes the next bits and returns them as an integer.
func (a *Reader) Read(bits int) (v uint) {
	if bits == 0 {
		return 0
	}
	free := a.byteBitsFree()
	if bits <= free {
		clear := 8 - (a.bitOffset + bits)
		v = zeroTopByteBits(uint(a.Bytes[a.byteOffset]), clear) >> a.bitOffset
		if bits == free {
			a.bitOffset = 0
			a.byteOffset++
		} else {
			a.bitOffset += bits
		}
		return v
	}
	v = uint(a.Bytes[a.byteOffset]) >> a.bitOffset
	a.bitOffset = 0
	a.byteOffset++
	return v | a.Read(bits-free)<<free
}

// View returns the next bits without consuming them.
func (a *Reader) View(bits int) (v uint) {
	cp := *a
	return cp.Read(bits)
}

// NonReadBytes counts bytes not fully consumed.
func (a *Reader) NonReadBytes() int {
	return len(a.Bytes) - a.byteOffset
}

// NonReadBits counts unconsumed bits.
func (a *Reader) NonReadBits() int {
	return a.NonReadBytes()*8 - a.bitOffset
}
