package integration

import (
	"fmt"
	"time"

	"github.com/Fantom-foundation/lachesis-base/inter/idx"
)

// Presets bundle the retention and cache knobs of a node into named
// profiles so operators pick one instead of tuning each value:
//
//	cfg := integration.LitePreset()    // fakenet and CI
//	cfg := integration.FullPreset()    // staking nodes
//	cfg := integration.ArchivePreset() // proof and reputation explorers

// PresetConfig captures the parameters that vary across profiles.
type PresetConfig struct {
	Name string
	// ReputationCapacity bounds the node reputation table.
	ReputationCapacity int
	// StakeSeenKeep is how many kernel records the journal retains.
	StakeSeenKeep int
	// ProofRetention is how many blocks of journaled proofs survive
	// pruning; zero keeps everything.
	ProofRetention idx.Block
	MinerSleep     time.Duration
	// InMemory keeps the journal off disk.
	InMemory bool
}

func DefaultPreset() PresetConfig {
	return PresetConfig{
		Name:               "default",
		ReputationCapacity: 4096,
		StakeSeenKeep:      1000,
		ProofRetention:     1000,
		MinerSleep:         500 * time.Millisecond,
	}
}

// LitePreset is for throwaway nodes: small tables, nothing on disk, fast
// kernel search.
func LitePreset() PresetConfig {
	cfg := DefaultPreset()
	cfg.Name = "lite"
	cfg.ReputationCapacity = 256
	cfg.StakeSeenKeep = 100
	cfg.ProofRetention = 128
	cfg.MinerSleep = 100 * time.Millisecond
	cfg.InMemory = true
	return cfg
}

// FullPreset is for long running staking nodes.
func FullPreset() PresetConfig {
	cfg := DefaultPreset()
	cfg.Name = "full"
	cfg.ReputationCapacity = 16384
	return cfg
}

// ArchivePreset never prunes journaled proofs, for nodes serving
// historical proof and reputation queries.
func ArchivePreset() PresetConfig {
	cfg := DefaultPreset()
	cfg.Name = "archive"
	cfg.ReputationCapacity = 65536
	cfg.StakeSeenKeep = 10000
	cfg.ProofRetention = 0
	return cfg
}

// GetPresetByName looks up a preset by its identifier.
func GetPresetByName(name string) (PresetConfig, error) {
	switch name {
	case "lite":
		return LitePreset(), nil
	case "full":
		return FullPreset(), nil
	case "archive":
		return ArchivePreset(), nil
	case "default", "":
		return DefaultPreset(), nil
	default:
		return PresetConfig{}, fmt.Errorf("unknown preset: %q (valid: lite, full, archive, default)", name)
	}
}

// ApplyPreset copies the non-zero fields of preset into cfg. ProofRetention
// and InMemory are always copied since their zero values are meaningful.
func ApplyPreset(cfg *Config, preset PresetConfig) {
	if preset.ReputationCapacity > 0 {
		cfg.ReputationCapacity = preset.ReputationCapacity
	}
	if preset.StakeSeenKeep > 0 {
		cfg.StakeSeenKeep = preset.StakeSeenKeep
	}
	if preset.MinerSleep > 0 {
		cfg.Minter.MinerSleep = preset.MinerSleep
	}
	cfg.ProofRetention = preset.ProofRetention
	cfg.InMemory = preset.InMemory
}
