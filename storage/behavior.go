package storage

import (
	"sort"
	"sync"

	"github.com/Fantom-foundation/lachesis-base/inter/idx"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sirupsen/logrus"

	"github.com/barrystyle/datos/datos"
	"github.com/barrystyle/datos/inter"
	"github.com/barrystyle/datos/logger"
)

const (
	ScoreIncrease = 5
	ScoreDecrease = 25
	MaxScore      = 100

	// DefaultReputationCapacity bounds how many node addresses are tracked.
	DefaultReputationCapacity = 4096
	// SeenWindow is how far below the highest scored height a proof may
	// still arrive out of order. Anything older counts as scored.
	SeenWindow = 128
)

// NodeReputation is the health of one storage node, keyed by address.
type NodeReputation struct {
	IP    uint32
	Space uint32
	Score int
}

// NodeScorer folds network proofs into per-node health scores. Nodes gain
// ScoreIncrease for every proof that reports them active and lose
// ScoreDecrease for every proof that does not; a change of declared space
// resets the score.
type NodeScorer struct {
	mu    sync.Mutex
	nodes *lru.Cache[uint32, *NodeReputation]
	// high is the highest scored height; seen holds the scored heights
	// inside the window below it.
	high idx.Block
	seen map[idx.Block]struct{}

	log *logrus.Entry
}

// NewNodeScorer tracks up to capacity nodes, evicting the least recently
// reported one.
func NewNodeScorer(capacity int) *NodeScorer {
	if capacity <= 0 {
		capacity = DefaultReputationCapacity
	}
	nodes, err := lru.New[uint32, *NodeReputation](capacity)
	if err != nil {
		panic(err)
	}
	return &NodeScorer{
		nodes: nodes,
		seen:  make(map[idx.Block]struct{}),
		log:   logger.New("behavior"),
	}
}

// Init clears the table and replays every proof above the last
// proof-of-work block.
func (s *NodeScorer) Init(rules datos.Rules, src ProofSource) {
	s.mu.Lock()
	s.nodes.Purge()
	s.resetSeen()
	s.mu.Unlock()

	tip := src.TipHeight()
	for h := rules.Stake.LastPoWBlock + 1; h <= tip; h++ {
		if np, ok := src.NetworkProofAt(h); ok {
			s.AddProof(&np)
		}
	}
	s.log.WithFields(logrus.Fields{"tip": tip, "nodes": s.Len()}).Info("Node scores replayed")
}

// HaveSeen reports whether the proof for height was already scored.
// Heights more than SeenWindow below the highest scored one always count
// as scored.
func (s *NodeScorer) HaveSeen(height idx.Block) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.haveSeen(height)
}

// SetSeen marks height as scored.
func (s *NodeScorer) SetSeen(height idx.Block) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setSeen(height)
}

// HighWater is the highest scored height, zero before the first proof.
func (s *NodeScorer) HighWater() idx.Block {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.high
}

// CatchUpFrom is the lowest height above from whose proof may still be
// unscored.
func (s *NodeScorer) CatchUpFrom(from idx.Block) idx.Block {
	s.mu.Lock()
	defer s.mu.Unlock()
	if floor := s.floor(); floor >= from {
		return floor + 1
	}
	return from
}

func (s *NodeScorer) floor() idx.Block {
	if s.high <= SeenWindow {
		return 0
	}
	return s.high - SeenWindow
}

func (s *NodeScorer) haveSeen(height idx.Block) bool {
	if height <= s.floor() {
		return true
	}
	_, ok := s.seen[height]
	return ok
}

func (s *NodeScorer) setSeen(height idx.Block) {
	if height <= s.floor() {
		return
	}
	s.seen[height] = struct{}{}
	if height <= s.high {
		return
	}
	s.high = height
	floor := s.floor()
	for h := range s.seen {
		if h <= floor {
			delete(s.seen, h)
		}
	}
}

func (s *NodeScorer) resetSeen() {
	s.high = 0
	s.seen = make(map[idx.Block]struct{})
}

// AddProof scores np once per height. It reports whether np was applied.
func (s *NodeScorer) AddProof(np *inter.NetworkProof) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.haveSeen(np.Height) {
		return false
	}
	s.setSeen(np.Height)

	active := make(map[uint32]struct{}, len(np.Proof.Nodes))
	for _, rec := range np.Proof.Nodes {
		rep, ok := s.nodes.Get(rec.IP)
		if !ok {
			rep = &NodeReputation{IP: rec.IP, Space: rec.Space}
			s.nodes.Add(rec.IP, rep)
		} else if rep.Space != rec.Space {
			rep.Space = rec.Space
			rep.Score = 0
		}
		if rec.Active() {
			active[rec.IP] = struct{}{}
			rep.Score += ScoreIncrease
			if rep.Score > MaxScore {
				rep.Score = MaxScore
			}
		}
		s.log.WithFields(logrus.Fields{
			"height": np.Height,
			"ip":     rec.IPString(),
			"score":  rep.Score,
		}).Trace("Node reported")
	}

	for _, ip := range s.nodes.Keys() {
		if _, ok := active[ip]; ok {
			continue
		}
		rep, ok := s.nodes.Peek(ip)
		if !ok {
			continue
		}
		rep.Score -= ScoreDecrease
		if rep.Score < 0 {
			rep.Score = 0
		}
	}
	return true
}

// Node returns the reputation of ip.
func (s *NodeScorer) Node(ip uint32) (NodeReputation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rep, ok := s.nodes.Peek(ip)
	if !ok {
		return NodeReputation{}, false
	}
	return *rep, true
}

// NodeScore returns the score and declared space of ip, zero when unknown.
func (s *NodeScorer) NodeScore(ip uint32) (int, uint32) {
	rep, _ := s.Node(ip)
	return rep.Score, rep.Space
}

// Len is the number of tracked nodes.
func (s *NodeScorer) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nodes.Len()
}

// Snapshot returns every tracked node from least to most recently
// reported, plus the scored heights inside the window in ascending order.
// The highest of them is the high-water mark.
func (s *NodeScorer) Snapshot() ([]NodeReputation, []idx.Block) {
	s.mu.Lock()
	defer s.mu.Unlock()
	nodes := make([]NodeReputation, 0, s.nodes.Len())
	for _, ip := range s.nodes.Keys() {
		if rep, ok := s.nodes.Peek(ip); ok {
			nodes = append(nodes, *rep)
		}
	}
	heights := make([]idx.Block, 0, len(s.seen))
	for h := range s.seen {
		heights = append(heights, h)
	}
	sort.Slice(heights, func(i, j int) bool { return heights[i] < heights[j] })
	return nodes, heights
}

// Restore replaces the table with a snapshot taken by Snapshot. Nodes are
// re-added in order so the most recently reported one is evicted last.
func (s *NodeScorer) Restore(nodes []NodeReputation, heights []idx.Block) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nodes.Purge()
	s.resetSeen()
	for i := range nodes {
		rep := nodes[i]
		s.nodes.Add(rep.IP, &rep)
	}
	for _, h := range heights {
		s.setSeen(h)
	}
}
