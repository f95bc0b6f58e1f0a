package storage

import (
	"github.com/btcsuite/btcd/btcutil"

	"github.com/barrystyle/datos/logger"
)

// SpaceModeBucket is the declared space covered by one space mode.
const SpaceModeBucket = 25

// spacePercentile maps space modes 1..10 to the percentage of the base
// reward paid.
var spacePercentile = [...]int64{5, 6, 7, 8, 9, 10, 11, 12, 15, 17}

// SpaceMode converts declared space to its reward bucket.
func SpaceMode(space uint32) int {
	return int(space / SpaceModeBucket)
}

// CalculateNodeReward returns the share of base earned by a node in
// spaceMode with the given score. Only nodes at MaxScore are paid, and
// modes outside 1..10 earn nothing.
func CalculateNodeReward(base btcutil.Amount, spaceMode, score int) btcutil.Amount {
	if spaceMode < 1 || spaceMode > len(spacePercentile) {
		logger.New("rewards").WithField("space_mode", spaceMode).Debug("Space mode out of range")
		return 0
	}
	if score < MaxScore {
		return 0
	}
	return base * btcutil.Amount(spacePercentile[spaceMode-1]) / 100
}

// NodePayment is the reward owed to the storage node at ip according to
// its current reputation.
func (s *NodeScorer) NodePayment(base btcutil.Amount, ip uint32) btcutil.Amount {
	score, space := s.NodeScore(ip)
	return CalculateNodeReward(base, SpaceMode(space), score)
}
