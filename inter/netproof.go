package inter

import (
	"errors"
	"fmt"
	"io"

	"github.com/Fantom-foundation/lachesis-base/inter/idx"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"

	"github.com/barrystyle/datos/utils/fast"
)

const (
	// MaxProofNodes bounds the node count accepted from the wire.
	MaxProofNodes = 1 << 15
	// MaxProofSigSize bounds the signature accepted from the wire.
	MaxProofSigSize = 128
)

var (
	ErrProofTooShort      = errors.New("proof container too short")
	ErrProofCountMismatch = errors.New("proof node count does not match payload length")
	ErrProofTooManyNodes  = errors.New("proof node count exceeds limit")
	ErrNegativeHeight     = errors.New("negative proof height")
)

// Proof is a storage network snapshot: the ordered list of node records.
type Proof struct {
	Nodes []StorageNodeRecord
}

// TotalSpace sums the advertised space of every node.
func (p Proof) TotalSpace() uint64 {
	var sum uint64
	for _, n := range p.Nodes {
		sum += uint64(n.Space)
	}
	return sum
}

// MarshalBinary encodes the container form: a 4-byte little-endian node
// count followed by the records.
func (p Proof) MarshalBinary() ([]byte, error) {
	w := fast.NewWriter(make([]byte, 0, 4+len(p.Nodes)*StorageNodeRecordSize))
	w.WriteUint32LE(uint32(len(p.Nodes)))
	for _, n := range p.Nodes {
		n.EncodeTo(w)
	}
	return w.Bytes(), nil
}

// UnmarshalBinary decodes the container form. The declared count must
// account for every byte of raw.
func (p *Proof) UnmarshalBinary(raw []byte) error {
	if len(raw) < 4 {
		return ErrProofTooShort
	}
	rd := fast.NewReader(raw)
	count := rd.ReadUint32LE()
	if uint64(count) != uint64(rd.Remaining()/StorageNodeRecordSize) || rd.Remaining()%StorageNodeRecordSize != 0 {
		return fmt.Errorf("%w: declared %d, have %d bytes", ErrProofCountMismatch, count, rd.Remaining())
	}
	nodes := make([]StorageNodeRecord, 0, count)
	for i := uint32(0); i < count; i++ {
		n, err := DecodeStorageNodeRecord(rd)
		if err != nil {
			return err
		}
		nodes = append(nodes, n)
	}
	p.Nodes = nodes
	return nil
}

// NetworkProof is a Proof bound to a block height and signed by the proof
// authority.
type NetworkProof struct {
	Height    idx.Block
	Proof     Proof
	Hash      chainhash.Hash
	Signature []byte
}

// Incomplete reports a proof with no height or no hash.
func (np *NetworkProof) Incomplete() bool {
	return np.Height == 0 || np.Hash == (chainhash.Hash{})
}

// CalcHash computes SHA-256(int32 height LE || SHA-256(record)...).
func (np *NetworkProof) CalcHash() chainhash.Hash {
	w := fast.NewWriter(make([]byte, 0, 4+len(np.Proof.Nodes)*chainhash.HashSize))
	w.WriteUint32LE(uint32(int32(np.Height)))
	for _, n := range np.Proof.Nodes {
		h := n.Hash()
		w.Write(h[:])
	}
	return chainhash.HashH(w.Bytes())
}

// Seal recomputes and stores the proof hash.
func (np *NetworkProof) Seal() chainhash.Hash {
	np.Hash = np.CalcHash()
	return np.Hash
}

// Copy returns a deep copy.
func (np *NetworkProof) Copy() NetworkProof {
	cp := *np
	cp.Proof.Nodes = append([]StorageNodeRecord(nil), np.Proof.Nodes...)
	cp.Signature = append([]byte(nil), np.Signature...)
	return cp
}

// Serialize writes the wire form: int32 height, compact-size prefixed
// records, 32-byte hash, compact-size prefixed signature.
func (np *NetworkProof) Serialize(out io.Writer) error {
	w := fast.NewWriter(make([]byte, 0, 4+len(np.Proof.Nodes)*StorageNodeRecordSize))
	w.WriteUint32LE(uint32(int32(np.Height)))
	if _, err := out.Write(w.Bytes()); err != nil {
		return err
	}
	if err := wire.WriteVarInt(out, 0, uint64(len(np.Proof.Nodes))); err != nil {
		return err
	}
	w = fast.NewWriter(make([]byte, 0, len(np.Proof.Nodes)*StorageNodeRecordSize+chainhash.HashSize))
	for _, n := range np.Proof.Nodes {
		n.EncodeTo(w)
	}
	w.Write(np.Hash[:])
	if _, err := out.Write(w.Bytes()); err != nil {
		return err
	}
	return wire.WriteVarBytes(out, 0, np.Signature)
}

// Deserialize reads the wire form written by Serialize.
func (np *NetworkProof) Deserialize(in io.Reader) error {
	var head [4]byte
	if _, err := io.ReadFull(in, head[:]); err != nil {
		return err
	}
	height := int32(fast.NewReader(head[:]).ReadUint32LE())
	if height < 0 {
		return ErrNegativeHeight
	}
	count, err := wire.ReadVarInt(in, 0)
	if err != nil {
		return err
	}
	if count > MaxProofNodes {
		return ErrProofTooManyNodes
	}
	body := make([]byte, int(count)*StorageNodeRecordSize+chainhash.HashSize)
	if _, err := io.ReadFull(in, body); err != nil {
		return err
	}
	rd := fast.NewReader(body)
	nodes := make([]StorageNodeRecord, 0, count)
	for i := uint64(0); i < count; i++ {
		n, err := DecodeStorageNodeRecord(rd)
		if err != nil {
			return err
		}
		nodes = append(nodes, n)
	}
	var hash chainhash.Hash
	copy(hash[:], rd.Read(chainhash.HashSize))
	sig, err := wire.ReadVarBytes(in, 0, MaxProofSigSize, "proofsig")
	if err != nil {
		return err
	}

	np.Height = idx.Block(height)
	np.Proof = Proof{Nodes: nodes}
	np.Hash = hash
	np.Signature = sig
	return nil
}
