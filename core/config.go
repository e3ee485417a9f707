package core

import (
	"errors"
	"math"
)

// Default scheduler constants. The hardware tick is the sub-second unit:
// one "second" is DefaultNanosPerSecond ticks and one epoch is
// DefaultEpochSeconds of those, i.e. 4_096_000_000 ticks.
const (
	DefaultEpochSeconds   = 4096
	DefaultNanosPerSecond = 1000000

	DefaultThreshold = 20 // ticks of slack before a deadline counts as past
	DefaultBackoff   = 10 // ticks from now when arming a past deadline
	DefaultNudge     = 10 // ticks pulled off deadlines in epoch zero
)

// Config holds the scheduler constants
type Config struct {
	// EpochSeconds is the epoch counter advance per wrap (E).
	EpochSeconds uint32 `yaml:"epoch_seconds"`

	// NanosPerSecond is the number of hardware ticks per counter second.
	NanosPerSecond uint32 `yaml:"nanos_per_second"`

	// Threshold is the forward-progress guard margin in ticks.
	Threshold uint32 `yaml:"threshold"`

	// Backoff is how far from now a past deadline is armed.
	Backoff uint32 `yaml:"backoff"`

	// Nudge is subtracted from deadlines that land in epoch zero.
	Nudge uint32 `yaml:"nudge"`
}

// DefaultConfig returns the constants the scheduler was designed around
func DefaultConfig() Config {
	return Config{
		EpochSeconds:   DefaultEpochSeconds,
		NanosPerSecond: DefaultNanosPerSecond,
		Threshold:      DefaultThreshold,
		Backoff:        DefaultBackoff,
		Nudge:          DefaultNudge,
	}
}

// NanosPerEpoch returns the number of hardware ticks in one epoch
func (c Config) NanosPerEpoch() uint32 {
	return c.EpochSeconds * c.NanosPerSecond
}

// Validate checks that the constants describe a usable epoch
func (c Config) Validate() error {
	if c.EpochSeconds == 0 || c.NanosPerSecond == 0 {
		return errors.New("epoch seconds and nanos per second must be non-zero")
	}
	if uint64(c.EpochSeconds)*uint64(c.NanosPerSecond) > math.MaxUint32 {
		return errors.New("epoch length does not fit the 32-bit hardware counter")
	}
	if c.Threshold >= c.NanosPerEpoch() {
		return errors.New("threshold must be shorter than one epoch")
	}
	if c.Backoff == 0 {
		return errors.New("backoff must be non-zero")
	}
	return nil
}
