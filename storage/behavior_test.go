package storage

import (
	"math/rand"
	"testing"

	"github.com/Fantom-foundation/lachesis-base/inter/idx"
	"github.com/stretchr/testify/require"

	"github.com/barrystyle/datos/inter"
)

const (
	ipA = uint32(0x0a000001)
	ipB = uint32(0x0a000002)
	ipC = uint32(0x0a000003)
)

func scoreProof(height idx.Block, nodes ...inter.StorageNodeRecord) *inter.NetworkProof {
	np := inter.NetworkProof{Height: height, Proof: inter.Proof{Nodes: nodes}}
	np.Seal()
	return &np
}

func TestScoreGrowth(t *testing.T) {
	require := require.New(t)
	s := NewNodeScorer(0)

	require.True(s.AddProof(scoreProof(11, node(ipA, 100, true))))
	score, space := s.NodeScore(ipA)
	require.Equal(ScoreIncrease, score)
	require.Equal(uint32(100), space)

	for h := idx.Block(12); h < 40; h++ {
		s.AddProof(scoreProof(h, node(ipA, 100, true)))
		score, _ := s.NodeScore(ipA)
		require.LessOrEqual(score, MaxScore)
	}
	score, _ = s.NodeScore(ipA)
	require.Equal(MaxScore, score)
}

func TestScoreDecay(t *testing.T) {
	require := require.New(t)
	s := NewNodeScorer(0)
	s.Restore([]NodeReputation{{IP: ipA, Space: 100, Score: MaxScore}}, nil)

	for k := 1; k <= 5; k++ {
		s.AddProof(scoreProof(idx.Block(100+k), node(ipB, 50, true)))
		score, _ := s.NodeScore(ipA)
		want := MaxScore - ScoreDecrease*k
		if want < 0 {
			want = 0
		}
		require.Equal(want, score, "after %d missed proofs", k)
	}
}

func TestScoreInactiveSighting(t *testing.T) {
	require := require.New(t)
	s := NewNodeScorer(0)
	s.Restore([]NodeReputation{{IP: ipA, Space: 100, Score: 60}}, nil)

	s.AddProof(scoreProof(20, node(ipA, 100, false)))
	score, _ := s.NodeScore(ipA)
	require.Equal(60-ScoreDecrease, score)

	// first sighting of an inactive node stays at zero
	s.AddProof(scoreProof(21, node(ipB, 10, false)))
	score, space := s.NodeScore(ipB)
	require.Zero(score)
	require.Equal(uint32(10), space)
}

func TestScoreSpaceChangeResets(t *testing.T) {
	require := require.New(t)
	s := NewNodeScorer(0)
	s.Restore([]NodeReputation{{IP: ipA, Space: 100, Score: MaxScore}}, nil)

	s.AddProof(scoreProof(30, node(ipA, 250, true)))
	score, space := s.NodeScore(ipA)
	require.Equal(ScoreIncrease, score)
	require.Equal(uint32(250), space)
}

func TestScoreHeightDedup(t *testing.T) {
	require := require.New(t)
	s := NewNodeScorer(0)

	require.False(s.HaveSeen(50))
	require.True(s.AddProof(scoreProof(50, node(ipA, 100, true))))
	require.True(s.HaveSeen(50))
	require.False(s.AddProof(scoreProof(50, node(ipA, 100, true))))
	score, _ := s.NodeScore(ipA)
	require.Equal(ScoreIncrease, score)

	s.SetSeen(51)
	require.False(s.AddProof(scoreProof(51, node(ipA, 100, true))))
	score, _ = s.NodeScore(ipA)
	require.Equal(ScoreIncrease, score)
}

func TestScoreBounds(t *testing.T) {
	require := require.New(t)
	s := NewNodeScorer(0)
	r := rand.New(rand.NewSource(7))
	ips := []uint32{ipA, ipB, ipC}
	spaces := []uint32{25, 50}

	for h := idx.Block(11); h < 400; h++ {
		var nodes []inter.StorageNodeRecord
		for _, ip := range ips {
			if r.Intn(3) == 0 {
				continue
			}
			nodes = append(nodes, node(ip, spaces[r.Intn(len(spaces))], r.Intn(4) != 0))
		}
		s.AddProof(scoreProof(h, nodes...))
		for _, ip := range ips {
			score, _ := s.NodeScore(ip)
			require.GreaterOrEqual(score, 0)
			require.LessOrEqual(score, MaxScore)
		}
	}
}

func TestScorerCapacity(t *testing.T) {
	require := require.New(t)
	s := NewNodeScorer(2)

	s.AddProof(scoreProof(11, node(ipA, 1, true), node(ipB, 1, true)))
	s.AddProof(scoreProof(12, node(ipB, 1, true), node(ipC, 1, true)))

	require.Equal(2, s.Len())
	_, ok := s.Node(ipA)
	require.False(ok)
	_, ok = s.Node(ipC)
	require.True(ok)
}

func TestScorerInit(t *testing.T) {
	require := require.New(t)
	rules := testRules()
	chain := newTestChain(40)
	chain.proofs[5] = *scoreProof(5, node(ipB, 100, true))
	for h := rules.Stake.LastPoWBlock + 1; h <= 40; h++ {
		chain.proofs[h] = *scoreProof(h, node(ipA, 100, true))
	}

	s := NewNodeScorer(0)
	s.AddProof(scoreProof(3, node(ipC, 1, true)))
	s.Init(rules, chain)

	require.Equal(1, s.Len())
	score, _ := s.NodeScore(ipA)
	require.Equal(MaxScore, score)
	require.True(s.HaveSeen(40))
	require.False(s.HaveSeen(3))
}

func TestScorerSnapshot(t *testing.T) {
	require := require.New(t)
	s := NewNodeScorer(0)
	s.AddProof(scoreProof(12, node(ipB, 50, true)))
	s.AddProof(scoreProof(11, node(ipA, 100, true), node(ipB, 50, true)))

	nodes, heights := s.Snapshot()
	require.Equal([]NodeReputation{
		{IP: ipA, Space: 100, Score: 5},
		{IP: ipB, Space: 50, Score: 10},
	}, nodes)
	require.Equal([]idx.Block{11, 12}, heights)

	restored := NewNodeScorer(0)
	restored.Restore(nodes, heights)
	again, againHeights := restored.Snapshot()
	require.Equal(nodes, again)
	require.Equal(heights, againHeights)
	require.True(restored.HaveSeen(12))
}

func TestScoreOldHeightNotReapplied(t *testing.T) {
	require := require.New(t)
	s := NewNodeScorer(0)

	require.True(s.AddProof(scoreProof(1, node(ipB, 10, true))))
	for h := idx.Block(2); h <= 5000; h++ {
		require.True(s.AddProof(scoreProof(h, node(ipA, 100, true))))
	}
	require.Equal(idx.Block(5000), s.HighWater())
	require.True(s.HaveSeen(1))

	require.False(s.AddProof(scoreProof(1, node(ipB, 10, true))))
	score, _ := s.NodeScore(ipA)
	require.Equal(MaxScore, score)
	score, _ = s.NodeScore(ipB)
	require.Zero(score)

	_, heights := s.Snapshot()
	require.Len(heights, SeenWindow)
	require.Equal(idx.Block(5000), heights[len(heights)-1])
}

func TestScoreOutOfOrderWithinWindow(t *testing.T) {
	require := require.New(t)
	s := NewNodeScorer(0)

	s.AddProof(scoreProof(1000, node(ipA, 100, true)))
	require.False(s.HaveSeen(1000 - SeenWindow + 1))
	require.True(s.AddProof(scoreProof(1000-SeenWindow+1, node(ipA, 100, true))))
	require.True(s.HaveSeen(1000 - SeenWindow))
	require.False(s.AddProof(scoreProof(1000-SeenWindow, node(ipA, 100, true))))
	score, _ := s.NodeScore(ipA)
	require.Equal(2*ScoreIncrease, score)
}

func TestScorerRestoredMarkSkipsCatchUp(t *testing.T) {
	require := require.New(t)
	s := NewNodeScorer(0)
	for h := idx.Block(11); h <= 600; h++ {
		s.AddProof(scoreProof(h, node(ipA, 100, true)))
	}
	nodes, heights := s.Snapshot()

	restored := NewNodeScorer(0)
	restored.Restore(nodes, heights)
	require.Equal(idx.Block(600), restored.HighWater())
	require.True(restored.HaveSeen(11))
	require.True(restored.HaveSeen(600))
	require.False(restored.HaveSeen(601))
	require.Equal(idx.Block(600-SeenWindow+1), restored.CatchUpFrom(11))
	require.Equal(idx.Block(11), NewNodeScorer(0).CatchUpFrom(11))
}

func TestScorerSnapshotKeepsRecency(t *testing.T) {
	require := require.New(t)
	s := NewNodeScorer(2)
	s.AddProof(scoreProof(11, node(ipB, 1, true)))
	s.AddProof(scoreProof(12, node(ipA, 1, true)))

	nodes, heights := s.Snapshot()
	require.Equal([]uint32{ipB, ipA}, []uint32{nodes[0].IP, nodes[1].IP})

	restored := NewNodeScorer(2)
	restored.Restore(nodes, heights)
	restored.AddProof(scoreProof(13, node(ipC, 1, true)))

	_, ok := restored.Node(ipB)
	require.False(ok)
	_, ok = restored.Node(ipA)
	require.True(ok)
	_, ok = restored.Node(ipC)
	require.True(ok)
}
