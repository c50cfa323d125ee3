// Package bitonic implements the segmented bitonic sorting network that
// reorders the pixels of every run by key.
//
// The network has a fixed, data-independent topology: for a line of n
// elements it runs Stages(n) = ceil(log2(n)) stages, and stage s consists of
// s+1 rounds of disjoint compare-exchange pairs. Each comparator is addressed
// from its own position and the run metadata alone, so every pair of every
// round can be evaluated independently.
//
// Comparators are addressed relative to the start of the run they belong to.
// Round 0 of stage s pairs t with its mirror inside the block of 2^(s+1)
// elements (t XOR (2^(s+1)-1)), the following rounds pair t with t XOR 2^(s-r).
// The mirrored first round folds the alternating ascending/descending
// sub-blocks of the classic network into the addressing, so every comparator
// orders its pair the same way and a partner that falls beyond the end of the
// run or the line can simply be skipped: it behaves like padding that already
// sits in its final place. That is what lets one network sort runs of any
// length starting at any offset.
package bitonic

import (
	"math/bits"
	"strings"

	"github.com/pkg/errors"

	"bitonicpixelsort/internal/models"
	"bitonicpixelsort/pkg/dispatch"
)

// ErrUnknownStrategy is returned by ParseStrategy for an unrecognised name
var ErrUnknownStrategy = errors.New("unknown sort strategy")

// Strategy selects how the rounds of the network are scheduled
type Strategy int

const (
	// StrategySingle runs every stage and round of a line inside one worker,
	// so no synchronisation is needed between rounds.
	StrategySingle Strategy = iota

	// StrategyRounds runs one round at a time across all lines, with a full
	// barrier between rounds.
	StrategyRounds
)

func (s Strategy) String() string {
	switch s {
	case StrategySingle:
		return "single"
	case StrategyRounds:
		return "rounds"
	default:
		return "unknown"
	}
}

// ParseStrategy maps a configuration name onto a Strategy
func ParseStrategy(name string) (Strategy, error) {
	switch strings.ToLower(name) {
	case "", "single":
		return StrategySingle, nil
	case "rounds":
		return StrategyRounds, nil
	default:
		return 0, errors.Wrapf(ErrUnknownStrategy, "%q", name)
	}
}

// Stages returns the number of stages needed for a line of n elements
func Stages(n int) int {
	if n <= 1 {
		return 0
	}
	return bits.Len(uint(n - 1))
}

// Rounds returns the total number of rounds of a network with the given stages
func Rounds(stages int) int {
	return stages * (stages + 1) / 2
}

// Partner returns the run-relative position paired with t in the given
// stage and round. Pairing is symmetric: Partner(Partner(t)) == t.
func Partner(t, stage, round int) int {
	if round == 0 {
		return t ^ (1<<(stage+1) - 1)
	}
	return t ^ (1 << (stage - round))
}

// Stats describes the work done by one Sort call
type Stats struct {
	Stages   int
	Rounds   int
	Barriers int
}

// Network drives the comparator rounds over all lines of an image
type Network struct {
	dispatcher *dispatch.Dispatcher
	strategy   Strategy
}

// NewNetwork creates a network scheduled with the given strategy
func NewNetwork(d *dispatch.Dispatcher, strategy Strategy) *Network {
	return &Network{dispatcher: d, strategy: strategy}
}

// Strategy returns the scheduling strategy of the network
func (n *Network) Strategy() Strategy {
	return n.strategy
}

// Sort orders every run of every line. keys, order and runs are line-major
// buffers of geom.Len() elements: keys holds the classifier's keys, runs its
// metadata. On return order[p] is the original line position of the pixel
// that belongs at line position p, and keys has been permuted the same way.
// Positions outside any run keep order[p] == p.
func (n *Network) Sort(geom models.Geometry, keys []float32, order []int32, runs []models.RunBounds, ascending bool) Stats {
	stages := Stages(geom.Size)
	stats := Stats{Stages: stages, Rounds: Rounds(stages)}
	if geom.Empty() {
		return stats
	}

	lineSlices := func(line int) ([]float32, []int32, []models.RunBounds) {
		lo, hi := geom.Offset(line, 0), geom.Offset(line, geom.Size)
		return keys[lo:hi], order[lo:hi], runs[lo:hi]
	}

	switch n.strategy {
	case StrategyRounds:
		n.dispatcher.ParallelFor(geom.Lines, func(start, end int) {
			for line := start; line < end; line++ {
				_, o, _ := lineSlices(line)
				resetOrder(o)
			}
		})
		stats.Barriers++

		for s := 0; s < stages; s++ {
			for r := 0; r <= s; r++ {
				n.dispatcher.ParallelFor(geom.Lines, func(start, end int) {
					for line := start; line < end; line++ {
						k, o, m := lineSlices(line)
						Round(k, o, m, s, r, ascending)
					}
				})
				stats.Barriers++
			}
		}

	default:
		n.dispatcher.ParallelFor(geom.Lines, func(start, end int) {
			for line := start; line < end; line++ {
				k, o, m := lineSlices(line)
				resetOrder(o)
				SortLine(k, o, m, ascending, stages)
			}
		})
		stats.Barriers++
	}

	return stats
}

// SortLine runs all stages of the network over a single line
func SortLine(keys []float32, order []int32, runs []models.RunBounds, ascending bool, stages int) {
	for s := 0; s < stages; s++ {
		for r := 0; r <= s; r++ {
			Round(keys, order, runs, s, r, ascending)
		}
	}
}

// Round evaluates every comparator of one round on a single line. Each
// position i acts as the worker for the pair it heads; pairs are disjoint.
func Round(keys []float32, order []int32, runs []models.RunBounds, stage, round int, ascending bool) {
	n := len(keys)
	for i := 0; i < n; i++ {
		run := runs[i]
		if !run.InRun() {
			continue
		}

		t := i - int(run.Start)
		p := Partner(t, stage, round)
		if p <= t {
			continue
		}

		j := int(run.Start) + p
		if j >= n || runs[j] != run {
			continue
		}

		if before(keys[j], order[j], keys[i], order[i], ascending) {
			keys[i], keys[j] = keys[j], keys[i]
			order[i], order[j] = order[j], order[i]
		}
	}
}

// before reports whether element a must precede element b. Equal keys fall
// back to the original position, which makes the order total and the result
// identical to a stable sort.
func before(keyA float32, posA int32, keyB float32, posB int32, ascending bool) bool {
	if keyA != keyB {
		if ascending {
			return keyA < keyB
		}
		return keyA > keyB
	}
	return posA < posB
}

func resetOrder(order []int32) {
	for i := range order {
		order[i] = int32(i)
	}
}
