package pipeline

import "sync"

// Flag identifies one category of upstream change.
type Flag uint8

const (
	// FlagSource marks the layout documents as changed.
	FlagSource Flag = iota

	// FlagOptions marks the diagram options as changed.
	FlagOptions

	// FlagRules marks the rule set as changed.
	FlagRules

	// FlagData marks the metric series as changed.
	FlagData

	flagCount
)

// String returns the flag name.
func (f Flag) String() string {
	switch f {
	case FlagSource:
		return "source"
	case FlagOptions:
		return "options"
	case FlagRules:
		return "rules"
	case FlagData:
		return "data"
	default:
		return "unknown"
	}
}

// Flags is a point-in-time view of the dirty flags.
type Flags struct {
	Source  bool
	Options bool
	Rules   bool
	Data    bool
}

// Any reports whether any flag is set.
func (f Flags) Any() bool {
	return f.Source || f.Options || f.Rules || f.Data
}

// flagSet holds the four dirty latches. Every mark bumps a generation
// counter; a clear only covers the generations seen by the snapshot that
// preceded it, so a mark made while a stage runs survives that stage.
type flagSet struct {
	mu      sync.Mutex
	gen     uint64
	marked  [flagCount]uint64
	cleared [flagCount]uint64
}

// flagSnapshot records the generation of each flag at tick start.
type flagSnapshot struct {
	gens [flagCount]uint64
	set  [flagCount]bool
}

func (s flagSnapshot) has(f Flag) bool { return s.set[f] }

func (s flagSnapshot) flags() Flags {
	return Flags{
		Source:  s.set[FlagSource],
		Options: s.set[FlagOptions],
		Rules:   s.set[FlagRules],
		Data:    s.set[FlagData],
	}
}

func (fs *flagSet) mark(f Flag) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.gen++
	fs.marked[f] = fs.gen
}

func (fs *flagSet) snapshot() flagSnapshot {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	var s flagSnapshot
	for f := range flagCount {
		s.gens[f] = fs.marked[f]
		s.set[f] = fs.marked[f] > fs.cleared[f]
	}
	return s
}

// clear drops the marks of f up to the snapshot generation.
func (fs *flagSet) clear(f Flag, s flagSnapshot) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if s.gens[f] > fs.cleared[f] {
		fs.cleared[f] = s.gens[f]
	}
}

func (fs *flagSet) current() Flags {
	return fs.snapshot().flags()
}
