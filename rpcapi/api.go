// Package rpcapi exposes the node over JSON-RPC (storage_* and staking_*
// namespaces) and a small read-only REST surface.
package rpcapi

import (
	"time"

	"github.com/Fantom-foundation/lachesis-base/inter/idx"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/barrystyle/datos/datos"
	"github.com/barrystyle/datos/integration"
	"github.com/barrystyle/datos/inter"
	"github.com/barrystyle/datos/storage"
)

// Backend is the node state the APIs read and drive.
type Backend interface {
	Rules() datos.Rules
	TipHeight() idx.Block
	Status(now time.Time) integration.StakingStatus
	Submitter() *storage.ProofSubmitter
	Proofs() *storage.ProofManager
	Scorer() *storage.NodeScorer
}

// NodeRecord is the JSON form of a storage node record.
type NodeRecord struct {
	ID       uint32 `json:"id"`
	IP       string `json:"ip"`
	Mode     uint8  `json:"mode"`
	Stat     uint8  `json:"stat"`
	Reg      uint8  `json:"reg"`
	Load     uint8  `json:"load"`
	Chunks   uint32 `json:"chunks"`
	ErrCount uint32 `json:"errcnt"`
	Space    uint32 `json:"space"`
	Active   bool   `json:"active"`
}

// Proof is the JSON form of a network proof.
type Proof struct {
	Height     idx.Block     `json:"height"`
	Hash       string        `json:"hash"`
	Signature  hexutil.Bytes `json:"signature"`
	TotalSpace uint64        `json:"totalSpace"`
	Nodes      []NodeRecord  `json:"nodes"`
}

func newNodeRecord(r inter.StorageNodeRecord) NodeRecord {
	return NodeRecord{
		ID:       r.ID,
		IP:       r.IPString(),
		Mode:     r.Mode,
		Stat:     r.Stat,
		Reg:      r.Reg,
		Load:     r.Load,
		Chunks:   r.Chunks,
		ErrCount: r.ErrCount,
		Space:    r.Space,
		Active:   r.Active(),
	}
}

// NewProof renders np for JSON.
func NewProof(np inter.NetworkProof) Proof {
	p := Proof{
		Height:     np.Height,
		Hash:       np.Hash.String(),
		Signature:  np.Signature,
		TotalSpace: np.Proof.TotalSpace(),
		Nodes:      make([]NodeRecord, 0, len(np.Proof.Nodes)),
	}
	for _, r := range np.Proof.Nodes {
		p.Nodes = append(p.Nodes, newNodeRecord(r))
	}
	return p
}

// NodeInfo is a storage node's reputation and the payment it earns.
type NodeInfo struct {
	IP        string         `json:"ip"`
	Score     int            `json:"score"`
	Space     uint32         `json:"space"`
	SpaceMode int            `json:"spaceMode"`
	Payment   btcutil.Amount `json:"payment"`
}

func nodeInfo(b Backend, ip uint32) NodeInfo {
	score, space := b.Scorer().NodeScore(ip)
	return NodeInfo{
		IP:        inter.FormatIPv4(ip),
		Score:     score,
		Space:     space,
		SpaceMode: storage.SpaceMode(space),
		Payment:   b.Scorer().NodePayment(b.Rules().Storage.BaseNodeReward, ip),
	}
}

// StorageAPI is the storage_ namespace.
type StorageAPI struct {
	b Backend
}

func NewStorageAPI(b Backend) *StorageAPI {
	return &StorageAPI{b: b}
}

// SubmitProof signs a hex encoded proof container with the WIF key for the
// next block height and relays it. It returns the proof hash.
func (api *StorageAPI) SubmitProof(hexProof, wif string) (string, error) {
	np, err := api.b.Submitter().Submit(hexProof, wif)
	if err != nil {
		return "", rpcError(err)
	}
	return np.Hash.String(), nil
}

// ResubmitProof relays the most recent proof again.
func (api *StorageAPI) ResubmitProof() (string, error) {
	np, err := api.b.Submitter().Resubmit()
	if err != nil {
		return "", rpcError(err)
	}
	return np.Hash.String(), nil
}

// ListProof maps the heights of recent proofs to their hashes.
func (api *StorageAPI) ListProof() map[idx.Block]string {
	recent := api.b.Proofs().Recent(api.b.TipHeight())
	out := make(map[idx.Block]string, len(recent))
	for _, np := range recent {
		out[np.Height] = np.Hash.String()
	}
	return out
}

// ParsedProof summarises the latest proof.
type ParsedProof struct {
	Height     idx.Block `json:"height"`
	Nodes      int       `json:"nodes"`
	TotalSpace uint64    `json:"totalSpace"`
}

// ParseProof totals the space declared in the latest proof.
func (api *StorageAPI) ParseProof() (ParsedProof, error) {
	np, ok := api.b.Proofs().Latest()
	if !ok {
		return ParsedProof{}, rpcError(storage.ErrNoProofs)
	}
	return ParsedProof{
		Height:     np.Height,
		Nodes:      len(np.Proof.Nodes),
		TotalSpace: np.Proof.TotalSpace(),
	}, nil
}

// GetProof returns the cached proof at height.
func (api *StorageAPI) GetProof(height hexutil.Uint64) (*Proof, error) {
	np, ok := api.b.Proofs().GetByHeight(idx.Block(height))
	if !ok {
		return nil, nil
	}
	p := NewProof(np)
	return &p, nil
}

// DecodeProof decodes a hex proof container without submitting it.
func (api *StorageAPI) DecodeProof(hexProof string) ([]NodeRecord, error) {
	p, err := storage.DecodeHexProof(hexProof)
	if err != nil {
		return nil, rpcError(err)
	}
	out := make([]NodeRecord, 0, len(p.Nodes))
	for _, r := range p.Nodes {
		out = append(out, newNodeRecord(r))
	}
	return out, nil
}

// NodeScore returns the reputation of the node at a dotted IPv4 address.
func (api *StorageAPI) NodeScore(ip string) (NodeInfo, error) {
	addr, err := inter.ParseIPv4(ip)
	if err != nil {
		return NodeInfo{}, &Error{Code: ErrCodeInvalidParameter, Message: "Invalid node address"}
	}
	return nodeInfo(api.b, addr), nil
}

// StakingAPI is the staking_ namespace.
type StakingAPI struct {
	b   Backend
	now func() time.Time
}

func NewStakingAPI(b Backend) *StakingAPI {
	return &StakingAPI{b: b, now: time.Now}
}

// Status reports the minter threads and stake weight.
func (api *StakingAPI) Status() integration.StakingStatus {
	return api.b.Status(api.now())
}

// Weight is the combined weight of the coins that can stake now.
func (api *StakingAPI) Weight() btcutil.Amount {
	return api.b.Status(api.now()).Weight
}

// NewServer returns a JSON-RPC server with both namespaces registered.
func NewServer(b Backend) (*rpc.Server, error) {
	srv := rpc.NewServer()
	if err := srv.RegisterName("storage", NewStorageAPI(b)); err != nil {
		return nil, err
	}
	if err := srv.RegisterName("staking", NewStakingAPI(b)); err != nil {
		return nil, err
	}
	return srv, nil
}
