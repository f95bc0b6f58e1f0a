// Package store is the node's LevelDB journal: accepted network proofs,
// the node reputation table and the stake kernels seen by the replay guard
// survive restarts through it.
package store

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/Fantom-foundation/lachesis-base/inter/idx"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/sirupsen/logrus"
	"github.com/syndtr/goleveldb/leveldb"
	ldberrors "github.com/syndtr/goleveldb/leveldb/errors"
	ldbstorage "github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/barrystyle/datos/inter"
	"github.com/barrystyle/datos/logger"
	"github.com/barrystyle/datos/storage"
	"github.com/barrystyle/datos/utils/cser"
)

var (
	proofPrefix     = []byte("p")
	stakeSeenPrefix = []byte("s")
	reputationKey   = []byte("r")
	stakeSeqKey     = []byte("S")
)

const (
	reputationVersion = 1
	// maxStoredNodes bounds a decoded reputation snapshot.
	maxStoredNodes = 1 << 20
)

var ErrBadVersion = errors.New("unknown record version")

// Store wraps a LevelDB handle.
type Store struct {
	db *leveldb.DB

	stakeMu sync.Mutex

	log *logrus.Entry
}

// Open opens or creates the journal at path.
func Open(path string) (*Store, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, err
	}
	return &Store{db: db, log: logger.New("store")}, nil
}

// OpenMemory returns a journal that lives only in memory.
func OpenMemory() (*Store, error) {
	db, err := leveldb.Open(ldbstorage.NewMemStorage(), nil)
	if err != nil {
		return nil, err
	}
	return &Store{db: db, log: logger.New("store")}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func heightKey(prefix []byte, h uint64) []byte {
	key := make([]byte, len(prefix)+8)
	copy(key, prefix)
	binary.BigEndian.PutUint64(key[len(prefix):], h)
	return key
}

// PutProof stores np under its height, replacing any earlier proof there.
func (s *Store) PutProof(np *inter.NetworkProof) error {
	var buf bytes.Buffer
	if err := np.Serialize(&buf); err != nil {
		return err
	}
	return s.db.Put(heightKey(proofPrefix, uint64(np.Height)), buf.Bytes(), nil)
}

// Proof loads the proof stored for height.
func (s *Store) Proof(height idx.Block) (inter.NetworkProof, bool, error) {
	raw, err := s.db.Get(heightKey(proofPrefix, uint64(height)), nil)
	if errors.Is(err, ldberrors.ErrNotFound) {
		return inter.NetworkProof{}, false, nil
	}
	if err != nil {
		return inter.NetworkProof{}, false, err
	}
	var np inter.NetworkProof
	if err := np.Deserialize(bytes.NewReader(raw)); err != nil {
		return inter.NetworkProof{}, false, fmt.Errorf("proof at %d: %w", height, err)
	}
	return np, true, nil
}

// Proofs returns every stored proof at or above from, lowest height first.
func (s *Store) Proofs(from idx.Block) ([]inter.NetworkProof, error) {
	it := s.db.NewIterator(&util.Range{
		Start: heightKey(proofPrefix, uint64(from)),
		Limit: util.BytesPrefix(proofPrefix).Limit,
	}, nil)
	defer it.Release()

	var out []inter.NetworkProof
	for it.Next() {
		var np inter.NetworkProof
		if err := np.Deserialize(bytes.NewReader(it.Value())); err != nil {
			return nil, err
		}
		out = append(out, np)
	}
	return out, it.Error()
}

// PruneProofs deletes proofs below height.
func (s *Store) PruneProofs(below idx.Block) (int, error) {
	it := s.db.NewIterator(&util.Range{
		Start: heightKey(proofPrefix, 0),
		Limit: heightKey(proofPrefix, uint64(below)),
	}, nil)
	defer it.Release()

	batch := new(leveldb.Batch)
	for it.Next() {
		batch.Delete(append([]byte(nil), it.Key()...))
	}
	if err := it.Error(); err != nil {
		return 0, err
	}
	return batch.Len(), s.db.Write(batch, nil)
}

// PutReputation replaces the stored reputation snapshot.
func (s *Store) PutReputation(nodes []storage.NodeReputation, heights []idx.Block) error {
	raw, err := cser.MarshalBinaryAdapter(func(w *cser.Writer) error {
		w.U8(reputationVersion)
		w.U56(uint64(len(nodes)))
		for _, n := range nodes {
			w.U32(n.IP)
			w.U32(n.Space)
			w.U8(uint8(n.Score))
		}
		w.U56(uint64(len(heights)))
		for _, h := range heights {
			w.U64(uint64(h))
		}
		return nil
	})
	if err != nil {
		return err
	}
	return s.db.Put(reputationKey, raw, nil)
}

// Reputation loads the stored snapshot; both slices are empty when none
// was saved.
func (s *Store) Reputation() ([]storage.NodeReputation, []idx.Block, error) {
	raw, err := s.db.Get(reputationKey, nil)
	if errors.Is(err, ldberrors.ErrNotFound) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}

	var (
		nodes   []storage.NodeReputation
		heights []idx.Block
	)
	err = cser.UnmarshalBinaryAdapter(raw, func(r *cser.Reader) error {
		if v := r.U8(); v != reputationVersion {
			return fmt.Errorf("%w: %d", ErrBadVersion, v)
		}
		n := r.U56()
		if n > maxStoredNodes {
			return cser.ErrTooLargeAlloc
		}
		nodes = make([]storage.NodeReputation, n)
		for i := range nodes {
			nodes[i].IP = r.U32()
			nodes[i].Space = r.U32()
			nodes[i].Score = int(r.U8())
		}
		n = r.U56()
		if n > maxStoredNodes {
			return cser.ErrTooLargeAlloc
		}
		heights = make([]idx.Block, n)
		for i := range heights {
			heights[i] = idx.Block(r.U64())
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return nodes, heights, nil
}

// StakeSeen is a kernel recorded by the replay guard.
type StakeSeen struct {
	Kernel wire.OutPoint
	Block  chainhash.Hash
}

// AppendStakeSeen journals a kernel record and keeps only the newest keep
// records.
func (s *Store) AppendStakeSeen(rec StakeSeen, keep int) error {
	s.stakeMu.Lock()
	defer s.stakeMu.Unlock()

	seq, err := s.stakeSeq()
	if err != nil {
		return err
	}
	raw, err := cser.MarshalBinaryAdapter(func(w *cser.Writer) error {
		w.FixedBytes(rec.Kernel.Hash[:])
		w.U32(rec.Kernel.Index)
		w.FixedBytes(rec.Block[:])
		return nil
	})
	if err != nil {
		return err
	}

	batch := new(leveldb.Batch)
	batch.Put(heightKey(stakeSeenPrefix, seq), raw)
	batch.Put(stakeSeqKey, heightKey(nil, seq+1))
	if seq >= uint64(keep) {
		batch.Delete(heightKey(stakeSeenPrefix, seq-uint64(keep)))
	}
	return s.db.Write(batch, nil)
}

func (s *Store) stakeSeq() (uint64, error) {
	raw, err := s.db.Get(stakeSeqKey, nil)
	if errors.Is(err, ldberrors.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(raw), nil
}

// StakeSeenRecords returns the journaled kernels, oldest first.
func (s *Store) StakeSeenRecords() ([]StakeSeen, error) {
	it := s.db.NewIterator(util.BytesPrefix(stakeSeenPrefix), nil)
	defer it.Release()

	var out []StakeSeen
	for it.Next() {
		var rec StakeSeen
		err := cser.UnmarshalBinaryAdapter(it.Value(), func(r *cser.Reader) error {
			r.FixedBytes(rec.Kernel.Hash[:])
			rec.Kernel.Index = r.U32()
			r.FixedBytes(rec.Block[:])
			return nil
		})
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, it.Error()
}
