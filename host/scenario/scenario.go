// Package scenario loads simulator scenarios from YAML.
package scenario

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"vtimer/core"
	"vtimer/timex"
)

// Scenario describes timers and sleeping threads to run on the simulator
type Scenario struct {
	Name     string      `yaml:"name"`
	Config   core.Config `yaml:"config"`
	Channels int         `yaml:"channels"`
	Timers   []Timer     `yaml:"timers"`
	Sleepers []Sleeper   `yaml:"sleepers"`
	Run      Run         `yaml:"run"`
}

// Timer is a callback timer; Repeat > 1 rearms it from its own action
type Timer struct {
	Name        string `yaml:"name"`
	Seconds     uint32 `yaml:"seconds"`
	Nanoseconds uint32 `yaml:"nanoseconds"`
	Repeat      int    `yaml:"repeat"`
}

// Interval returns the timer's relative deadline
func (t Timer) Interval() timex.Time {
	return timex.Set(t.Seconds, t.Nanoseconds)
}

// Sleeper is a thread that calls USleep Count times
type Sleeper struct {
	Name   string `yaml:"name"`
	USleep uint32 `yaml:"usleep"`
	Count  int    `yaml:"count"`
}

// Run controls how far and in which steps the hardware counter advances
type Run struct {
	Ticks uint32 `yaml:"ticks"`
	Step  uint32 `yaml:"step"`
}

// LoadError reports a scenario that could not be loaded
type LoadError struct {
	File    string
	Message string
	Cause   error
}

func (e *LoadError) Error() string {
	msg := e.Message
	if e.File != "" {
		msg = e.File + ": " + msg
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *LoadError) Unwrap() error {
	return e.Cause
}

// Parse decodes a scenario, applies defaults and validates it
func Parse(data []byte) (*Scenario, error) {
	var sc Scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, &LoadError{Message: "failed to parse YAML", Cause: err}
	}

	applyDefaults(&sc)

	if err := sc.Config.Validate(); err != nil {
		return nil, &LoadError{Message: "invalid scheduler config", Cause: err}
	}
	if len(sc.Timers) == 0 && len(sc.Sleepers) == 0 {
		return nil, &LoadError{Message: "scenario must have at least one timer or sleeper"}
	}
	for _, t := range sc.Timers {
		if t.Repeat > 1 && t.Interval().IsZero() {
			return nil, &LoadError{Message: fmt.Sprintf("timer %q repeats with a zero interval", t.Name)}
		}
	}
	seen := make(map[string]bool)
	for _, name := range sc.names() {
		if seen[name] {
			return nil, &LoadError{Message: fmt.Sprintf("duplicate name %q", name)}
		}
		seen[name] = true
	}
	return &sc, nil
}

// Load reads and parses a scenario file
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{File: path, Message: "failed to read file", Cause: err}
	}

	sc, err := Parse(data)
	if err != nil {
		if le, ok := err.(*LoadError); ok {
			le.File = path
		}
		return nil, err
	}
	return sc, nil
}

func (sc *Scenario) names() []string {
	names := make([]string, 0, len(sc.Timers)+len(sc.Sleepers))
	for _, t := range sc.Timers {
		names = append(names, t.Name)
	}
	for _, s := range sc.Sleepers {
		names = append(names, s.Name)
	}
	return names
}

// applyDefaults fills in missing values with the scheduler defaults
func applyDefaults(sc *Scenario) {
	def := core.DefaultConfig()
	if sc.Config.EpochSeconds == 0 {
		sc.Config.EpochSeconds = def.EpochSeconds
	}
	if sc.Config.NanosPerSecond == 0 {
		sc.Config.NanosPerSecond = def.NanosPerSecond
	}
	if sc.Config.Threshold == 0 {
		sc.Config.Threshold = def.Threshold
	}
	if sc.Config.Backoff == 0 {
		sc.Config.Backoff = def.Backoff
	}
	if sc.Config.Nudge == 0 {
		sc.Config.Nudge = def.Nudge
	}

	if sc.Channels == 0 {
		sc.Channels = 1
	}
	if sc.Run.Ticks == 0 {
		// Exactly one epoch, so the first tick is included
		sc.Run.Ticks = sc.Config.NanosPerEpoch()
	}
	if sc.Run.Step == 0 {
		sc.Run.Step = sc.Config.NanosPerSecond
	}

	for i := range sc.Timers {
		if sc.Timers[i].Name == "" {
			sc.Timers[i].Name = fmt.Sprintf("timer%d", i)
		}
		if sc.Timers[i].Repeat == 0 {
			sc.Timers[i].Repeat = 1
		}
	}
	for i := range sc.Sleepers {
		if sc.Sleepers[i].Name == "" {
			sc.Sleepers[i].Name = fmt.Sprintf("sleeper%d", i)
		}
		if sc.Sleepers[i].Count == 0 {
			sc.Sleepers[i].Count = 1
		}
	}
}
