package inter

import (
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/barrystyle/datos/utils/fast"
)

// StorageNodeRecordSize is the fixed encoded size of a StorageNodeRecord.
const StorageNodeRecordSize = 24

var ErrShortRecord = errors.New("storage node record truncated")

// StorageNodeRecord is one storage node's state as reported in a network
// proof. Field order and widths are part of the proof hash.
type StorageNodeRecord struct {
	ID       uint32
	IP       uint32
	Mode     uint8
	Stat     uint8
	Reg      uint8
	Load     uint8
	Chunks   uint32
	ErrCount uint32
	Space    uint32
}

// Active reports whether the node was online, serving, and registered when
// the proof was taken.
func (r StorageNodeRecord) Active() bool {
	return r.Mode > 0 && r.Stat > 0 && r.Reg > 0
}

// EncodeTo appends the 24-byte little-endian encoding of r.
func (r StorageNodeRecord) EncodeTo(w *fast.Writer) {
	w.WriteUint32LE(r.ID)
	w.WriteUint32LE(r.IP)
	w.WriteByte(r.Mode)
	w.WriteByte(r.Stat)
	w.WriteByte(r.Reg)
	w.WriteByte(r.Load)
	w.WriteUint32LE(r.Chunks)
	w.WriteUint32LE(r.ErrCount)
	w.WriteUint32LE(r.Space)
}

// Bytes returns the 24-byte encoding of r.
func (r StorageNodeRecord) Bytes() []byte {
	w := fast.NewWriter(make([]byte, 0, StorageNodeRecordSize))
	r.EncodeTo(w)
	return w.Bytes()
}

// DecodeStorageNodeRecord reads one record from rd.
func DecodeStorageNodeRecord(rd *fast.Reader) (StorageNodeRecord, error) {
	if rd.Remaining() < StorageNodeRecordSize {
		return StorageNodeRecord{}, ErrShortRecord
	}
	var r StorageNodeRecord
	r.ID = rd.ReadUint32LE()
	r.IP = rd.ReadUint32LE()
	r.Mode = rd.ReadByte()
	r.Stat = rd.ReadByte()
	r.Reg = rd.ReadByte()
	r.Load = rd.ReadByte()
	r.Chunks = rd.ReadUint32LE()
	r.ErrCount = rd.ReadUint32LE()
	r.Space = rd.ReadUint32LE()
	return r, nil
}

// Hash is the single SHA-256 of the record encoding.
func (r StorageNodeRecord) Hash() chainhash.Hash {
	return chainhash.HashH(r.Bytes())
}

// IPString renders the IPv4 address most significant byte first.
func (r StorageNodeRecord) IPString() string {
	return FormatIPv4(r.IP)
}

// FormatIPv4 renders a host-order IPv4 address as a dotted quad.
func FormatIPv4(ip uint32) string {
	return fmt.Sprintf("%d.%d.%d.%d", byte(ip>>24), byte(ip>>16), byte(ip>>8), byte(ip))
}

// ParseIPv4 is the inverse of FormatIPv4.
func ParseIPv4(s string) (uint32, error) {
	var a, b, c, d uint8
	n, err := fmt.Sscanf(s, "%d.%d.%d.%d", &a, &b, &c, &d)
	if err != nil || n != 4 {
		return 0, fmt.Errorf("invalid ipv4 address %q", s)
	}
	if FormatIPv4(uint32(a)<<24|uint32(b)<<16|uint32(c)<<8|uint32(d)) != s {
		return 0, fmt.Errorf("invalid ipv4 address %q", s)
	}
	return uint32(a)<<24 | uint32(b)<<16 | uint32(c)<<8 | uint32(d), nil
}
