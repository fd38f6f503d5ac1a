// Package allocator maintains the integer percentage budget split across
// evidence sources. Every operation except SetWeightDirect leaves the enabled
// weights summing to exactly 100.
package allocator

import (
	"fmt"
	"math"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/persona-cli/internal/model"
)

// Budget is the total percentage shared by enabled sources.
const Budget = 100

// EnableShare is the weight handed to a source when it is re-enabled.
const EnableShare = 10

// ErrSliderOverflow is returned when a slider move would exceed the budget
// left over by the sources above it. State is unchanged.
var ErrSliderOverflow = eris.New("allocator: slider value exceeds remaining budget")

// ErrSliderPinned is returned when the last enabled source is moved away from
// the only value that keeps the budget whole. State is unchanged.
var ErrSliderPinned = eris.New("allocator: last enabled source must absorb the remaining budget")

// Allocator owns an ordered list of sources. It is not safe for concurrent use.
type Allocator struct {
	sources []model.Source
}

// New returns an allocator seeded with the default 40/15/15/30 split.
func New() *Allocator {
	return &Allocator{sources: model.DefaultSources()}
}

// FromSources builds an allocator from a caller-supplied list. The list must
// contain each known source exactly once, with weights in [0, 100] and at
// least one source enabled. The result is in model.SourceKeys order whatever the
// input order. Disabled sources are zeroed and the result normalized.
func FromSources(sources []model.Source) (*Allocator, error) {
	seen := make(map[model.SourceKey]bool, len(sources))
	out := make([]model.Source, 0, len(sources))
	enabled := 0
	for _, s := range sources {
		if !s.Key.Valid() {
			return nil, &model.ValidationError{Field: "sources", Reason: fmt.Sprintf("unknown source %q", s.Key)}
		}
		if seen[s.Key] {
			return nil, &model.ValidationError{Field: "sources", Reason: fmt.Sprintf("duplicate source %q", s.Key)}
		}
		seen[s.Key] = true
		if s.Label == "" {
			s.Label = s.Key.Label()
		}
		if s.Weight < 0 || s.Weight > Budget {
			return nil, &model.ValidationError{Field: "sources", Reason: fmt.Sprintf("weight %d for %q outside 0..100", s.Weight, s.Key)}
		}
		if s.Enabled {
			enabled++
		}
		out = append(out, s)
	}
	if len(out) != len(model.SourceKeys()) {
		return nil, &model.ValidationError{Field: "sources", Reason: fmt.Sprintf("expected %d sources, got %d", len(model.SourceKeys()), len(out))}
	}
	if enabled == 0 {
		return nil, &model.ValidationError{Field: "sources", Reason: "at least one source must be enabled"}
	}
	byKey := make(map[model.SourceKey]model.Source, len(out))
	for _, s := range out {
		byKey[s.Key] = s
	}
	for i, k := range model.SourceKeys() {
		out[i] = byKey[k]
	}
	return &Allocator{sources: Normalize(out)}, nil
}

// Sources returns a copy of the current list.
func (a *Allocator) Sources() []model.Source {
	return append([]model.Source(nil), a.sources...)
}

// Allocation returns the current weight per source.
func (a *Allocator) Allocation() map[model.SourceKey]int {
	out := make(map[model.SourceKey]int, len(a.sources))
	for _, s := range a.sources {
		out[s.Key] = s.Weight
	}
	return out
}

// Total returns the sum of enabled weights.
func (a *Allocator) Total() int {
	return model.EnabledTotal(a.sources)
}

// Valid reports whether enabled weights sum to the budget and disabled ones are zero.
func (a *Allocator) Valid() bool {
	for _, s := range a.sources {
		if !s.Enabled && s.Weight != 0 {
			return false
		}
	}
	return a.Total() == Budget
}

// String renders the allocation as "key=weight%" pairs.
func (a *Allocator) String() string {
	parts := make([]string, 0, len(a.sources))
	for _, s := range a.sources {
		if s.Enabled {
			parts = append(parts, fmt.Sprintf("%s %d%%", s.Key, s.Weight))
		} else {
			parts = append(parts, fmt.Sprintf("%s off", s.Key))
		}
	}
	return strings.Join(parts, ", ")
}

// SetWeightDirect assigns a clamped, rounded weight with no rebalancing.
// The budget may drift from 100 until Normalize is called.
func (a *Allocator) SetWeightDirect(key model.SourceKey, value float64) error {
	i, err := a.index(key)
	if err != nil {
		return err
	}
	if math.IsNaN(value) {
		return &model.ValidationError{Field: string(key), Reason: "weight must be a number"}
	}
	a.sources[i].Weight = round(math.Min(math.Max(value, 0), Budget))
	return nil
}

// SetWeightViaSlider assigns value to key and rebalances the enabled sources
// below it in display order. Sources above it are untouched.
func (a *Allocator) SetWeightViaSlider(key model.SourceKey, value float64) error {
	i, err := a.index(key)
	if err != nil {
		return err
	}
	if !a.sources[i].Enabled {
		return &model.ValidationError{Field: string(key), Reason: "source is disabled"}
	}
	if math.IsNaN(value) || value < 0 {
		return &model.ValidationError{Field: string(key), Reason: fmt.Sprintf("weight must be a non-negative number, got %v", value)}
	}

	upper := 0
	for _, s := range a.sources[:i] {
		if s.Enabled {
			upper += s.Weight
		}
	}
	if value > Budget {
		return eris.Wrapf(ErrSliderOverflow, "allocator: %s=%v with %d%% available", key, value, Budget-upper)
	}
	v := round(value)
	if v > Budget-upper {
		return eris.Wrapf(ErrSliderOverflow, "allocator: %s=%d with %d%% available", key, v, Budget-upper)
	}

	var lower []int
	for j := i + 1; j < len(a.sources); j++ {
		if a.sources[j].Enabled {
			lower = append(lower, j)
		}
	}
	if len(lower) == 0 {
		if v != Budget-upper {
			return eris.Wrapf(ErrSliderPinned, "allocator: %s must be %d%%", key, Budget-upper)
		}
		a.sources[i].Weight = v
		return nil
	}

	available := Budget - upper - v
	basis := make([]int, len(lower))
	lowerTotal := 0
	for n, j := range lower {
		basis[n] = a.sources[j].Weight
		lowerTotal += basis[n]
	}

	// Proportional shares round half up; the last lower source takes whatever
	// is left so the total stays exact.
	shares := make([]int, len(lower))
	if lowerTotal > 0 {
		distributed := 0
		for n := 0; n < len(lower)-1; n++ {
			d := int(math.Round(float64(available) * float64(basis[n]) / float64(lowerTotal)))
			d = min(d, available-distributed)
			shares[n] = d
			distributed += d
		}
		shares[len(lower)-1] = available - distributed
	} else {
		shares = equalSplit(available, len(lower))
	}

	a.sources[i].Weight = v
	for n, j := range lower {
		a.sources[j].Weight = shares[n]
	}
	return nil
}

// ToggleDisable disables key and spreads its weight across the remaining
// enabled sources in proportion to their weights.
func (a *Allocator) ToggleDisable(key model.SourceKey) error {
	i, err := a.index(key)
	if err != nil {
		return err
	}
	if !a.sources[i].Enabled {
		return nil
	}
	enabled := 0
	for _, s := range a.sources {
		if s.Enabled {
			enabled++
		}
	}
	if enabled == 1 {
		return &model.ValidationError{Field: string(key), Reason: "at least one source must stay enabled"}
	}
	a.sources[i].Enabled = false
	a.sources[i].Weight = 0
	a.sources = Normalize(a.sources)
	return nil
}

// ToggleEnable re-enables key with a fixed share taken proportionally from
// the other enabled sources.
func (a *Allocator) ToggleEnable(key model.SourceKey) error {
	i, err := a.index(key)
	if err != nil {
		return err
	}
	if a.sources[i].Enabled {
		return nil
	}

	var others []int
	for j, s := range a.sources {
		if j != i && s.Enabled {
			others = append(others, j)
		}
	}
	a.sources[i].Enabled = true
	if len(others) == 0 {
		a.sources[i].Weight = Budget
		return nil
	}

	basis := make([]int, len(others))
	for n, j := range others {
		basis[n] = a.sources[j].Weight
	}
	shares := apportion(basis, Budget-EnableShare)
	a.sources[i].Weight = EnableShare
	for n, j := range others {
		a.sources[j].Weight = shares[n]
	}
	return nil
}

// Normalize rescales the current list in place.
func (a *Allocator) Normalize() {
	a.sources = Normalize(a.sources)
}

// Reset restores the default allocation.
func (a *Allocator) Reset() {
	a.sources = Normalize(model.DefaultSources())
}

// Normalize returns a copy of sources with disabled weights zeroed and enabled
// weights scaled to sum to 100. Scaled values are floored and the integer
// remainder goes to the currently largest weights first, ties broken by list
// order. When every enabled weight is zero the budget is split equally.
func Normalize(sources []model.Source) []model.Source {
	out := append([]model.Source(nil), sources...)
	var enabled []int
	for i := range out {
		if out[i].Enabled {
			enabled = append(enabled, i)
		} else {
			out[i].Weight = 0
		}
	}
	if len(enabled) == 0 {
		return out
	}

	basis := make([]int, len(enabled))
	for n, i := range enabled {
		basis[n] = max(out[i].Weight, 0)
	}
	shares := apportion(basis, Budget)
	for n, i := range enabled {
		out[i].Weight = shares[n]
	}
	return out
}

func (a *Allocator) index(key model.SourceKey) (int, error) {
	for i, s := range a.sources {
		if s.Key == key {
			return i, nil
		}
	}
	return -1, &model.ValidationError{Field: "source", Reason: fmt.Sprintf("unknown source %q", key)}
}
