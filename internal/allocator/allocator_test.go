package allocator

import (
	"errors"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/persona-cli/internal/model"
)

func weights(a *Allocator) []int {
	var out []int
	for _, s := range a.Sources() {
		out = append(out, s.Weight)
	}
	return out
}

func TestNewDefaults(t *testing.T) {
	t.Parallel()

	a := New()
	assert.Equal(t, []int{40, 15, 15, 30}, weights(a))
	assert.True(t, a.Valid())
	assert.Equal(t, "ai_generation 40%, web_extraction 15%, file_upload 15%, questionnaire 30%", a.String())
}

func TestToggleDisableRedistributesProportionally(t *testing.T) {
	t.Parallel()

	a := New()
	require.NoError(t, a.ToggleDisable(model.SourceAIGeneration))

	assert.Equal(t, []int{0, 25, 25, 50}, weights(a))
	assert.False(t, a.Sources()[0].Enabled)
	assert.True(t, a.Valid())
}

func TestToggleDisableAlreadyDisabledIsNoop(t *testing.T) {
	t.Parallel()

	a := New()
	require.NoError(t, a.ToggleDisable(model.SourceAIGeneration))
	before := weights(a)
	require.NoError(t, a.ToggleDisable(model.SourceAIGeneration))
	assert.Equal(t, before, weights(a))
}

func TestToggleDisableLastEnabledRejected(t *testing.T) {
	t.Parallel()

	a := New()
	require.NoError(t, a.ToggleDisable(model.SourceAIGeneration))
	require.NoError(t, a.ToggleDisable(model.SourceWebExtraction))
	require.NoError(t, a.ToggleDisable(model.SourceFileUpload))
	assert.Equal(t, []int{0, 0, 0, 100}, weights(a))

	err := a.ToggleDisable(model.SourceQuestionnaire)
	var ve *model.ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, []int{0, 0, 0, 100}, weights(a))
}

func TestToggleEnableTakesShareProportionally(t *testing.T) {
	t.Parallel()

	a := New()
	require.NoError(t, a.ToggleDisable(model.SourceAIGeneration))
	require.NoError(t, a.ToggleEnable(model.SourceAIGeneration))

	assert.Equal(t, []int{10, 22, 22, 46}, weights(a))
	assert.Equal(t, 100, a.Total())
	assert.True(t, a.Valid())
}

func TestToggleEnableOnlySourceTakesFullBudget(t *testing.T) {
	t.Parallel()

	a, err := FromSources([]model.Source{
		{Key: model.SourceAIGeneration, Weight: 0},
		{Key: model.SourceWebExtraction, Weight: 0},
		{Key: model.SourceFileUpload, Weight: 100, Enabled: true},
		{Key: model.SourceQuestionnaire, Weight: 0},
	})
	require.NoError(t, err)
	require.NoError(t, a.ToggleDisable(model.SourceAIGeneration))
	require.NoError(t, a.ToggleEnable(model.SourceWebExtraction))
	assert.Equal(t, []int{0, 10, 90, 0}, weights(a))
}

func TestSliderRebalancesLowerSources(t *testing.T) {
	t.Parallel()

	a := New()
	require.NoError(t, a.SetWeightViaSlider(model.SourceAIGeneration, 60))
	assert.Equal(t, []int{60, 10, 10, 20}, weights(a))
	assert.True(t, a.Valid())
}

func TestSliderLeavesUpperSourcesUntouched(t *testing.T) {
	t.Parallel()

	a := New()
	require.NoError(t, a.SetWeightViaSlider(model.SourceWebExtraction, 30))
	assert.Equal(t, []int{40, 30, 10, 20}, weights(a))
}

func TestSliderOverflowRejected(t *testing.T) {
	t.Parallel()

	a := New()
	err := a.SetWeightViaSlider(model.SourceWebExtraction, 61)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSliderOverflow))
	assert.Equal(t, []int{40, 15, 15, 30}, weights(a))

	err = a.SetWeightViaSlider(model.SourceAIGeneration, 250)
	assert.True(t, errors.Is(err, ErrSliderOverflow))
	assert.Equal(t, []int{40, 15, 15, 30}, weights(a))
}

func TestSliderLastEnabledSourceIsPinned(t *testing.T) {
	t.Parallel()

	a := New()
	require.NoError(t, a.SetWeightViaSlider(model.SourceQuestionnaire, 30))
	assert.Equal(t, []int{40, 15, 15, 30}, weights(a))

	err := a.SetWeightViaSlider(model.SourceQuestionnaire, 20)
	assert.True(t, errors.Is(err, ErrSliderPinned))
	assert.Equal(t, []int{40, 15, 15, 30}, weights(a))
}

func TestSliderSkipsDisabledLowerSources(t *testing.T) {
	t.Parallel()

	a := New()
	require.NoError(t, a.ToggleDisable(model.SourceFileUpload))
	assert.Equal(t, []int{48, 17, 0, 35}, weights(a))

	require.NoError(t, a.SetWeightViaSlider(model.SourceAIGeneration, 50))
	assert.Equal(t, []int{50, 16, 0, 34}, weights(a))
}

func TestSliderZeroLowerSplitsEqually(t *testing.T) {
	t.Parallel()

	a := New()
	require.NoError(t, a.SetWeightViaSlider(model.SourceAIGeneration, 100))
	assert.Equal(t, []int{100, 0, 0, 0}, weights(a))

	require.NoError(t, a.SetWeightViaSlider(model.SourceAIGeneration, 59))
	assert.Equal(t, []int{59, 14, 14, 13}, weights(a))
}

func TestSliderRoundingNeverOverspends(t *testing.T) {
	t.Parallel()

	a, err := FromSources([]model.Source{
		{Key: model.SourceAIGeneration, Weight: 98, Enabled: true},
		{Key: model.SourceWebExtraction, Weight: 1, Enabled: true},
		{Key: model.SourceFileUpload, Weight: 1, Enabled: true},
		{Key: model.SourceQuestionnaire, Weight: 0, Enabled: true},
	})
	require.NoError(t, err)

	require.NoError(t, a.SetWeightViaSlider(model.SourceAIGeneration, 97))
	assert.Equal(t, []int{97, 2, 1, 0}, weights(a))
	assert.True(t, a.Valid())
}

func TestSliderRejectsDisabledOrInvalid(t *testing.T) {
	t.Parallel()

	a := New()
	require.NoError(t, a.ToggleDisable(model.SourceFileUpload))

	var ve *model.ValidationError
	assert.True(t, errors.As(a.SetWeightViaSlider(model.SourceFileUpload, 10), &ve))
	assert.True(t, errors.As(a.SetWeightViaSlider(model.SourceAIGeneration, -1), &ve))
	assert.True(t, errors.As(a.SetWeightViaSlider("nope", 10), &ve))
}

func TestSetWeightDirectClampsWithoutRebalancing(t *testing.T) {
	t.Parallel()

	a := New()
	require.NoError(t, a.SetWeightDirect(model.SourceWebExtraction, 49.6))
	assert.Equal(t, []int{40, 50, 15, 30}, weights(a))
	assert.Equal(t, 135, a.Total())
	assert.False(t, a.Valid())

	require.NoError(t, a.SetWeightDirect(model.SourceFileUpload, 400))
	assert.Equal(t, 100, a.Sources()[2].Weight)
	require.NoError(t, a.SetWeightDirect(model.SourceFileUpload, -3))
	assert.Equal(t, 0, a.Sources()[2].Weight)
}

func TestNormalizeRepairsDirectEdits(t *testing.T) {
	t.Parallel()

	a := New()
	require.NoError(t, a.SetWeightDirect(model.SourceWebExtraction, 50))
	a.Normalize()
	assert.Equal(t, []int{29, 38, 11, 22}, weights(a))
	assert.True(t, a.Valid())
}

func TestNormalizeZeroWeightsSplitEqually(t *testing.T) {
	t.Parallel()

	sources := []model.Source{
		{Key: model.SourceAIGeneration, Enabled: true},
		{Key: model.SourceWebExtraction, Enabled: true},
		{Key: model.SourceFileUpload, Weight: 20},
		{Key: model.SourceQuestionnaire, Enabled: true},
	}
	out := Normalize(sources)
	assert.Equal(t, 34, out[0].Weight)
	assert.Equal(t, 33, out[1].Weight)
	assert.Equal(t, 0, out[2].Weight)
	assert.Equal(t, 33, out[3].Weight)
	assert.Equal(t, 20, sources[2].Weight, "input must not be mutated")
}

func TestNormalizeIdempotent(t *testing.T) {
	t.Parallel()

	r := rand.New(rand.NewPCG(1, 2))
	for range 500 {
		sources := model.DefaultSources()
		anyEnabled := false
		for i := range sources {
			sources[i].Weight = r.IntN(101)
			sources[i].Enabled = r.IntN(4) != 0
			anyEnabled = anyEnabled || sources[i].Enabled
		}
		if !anyEnabled {
			sources[0].Enabled = true
		}

		once := Normalize(sources)
		twice := Normalize(once)
		assert.Equal(t, once, twice)
		assert.Equal(t, 100, model.EnabledTotal(once))
		for _, s := range once {
			if !s.Enabled {
				assert.Zero(t, s.Weight)
			}
		}
	}
}

func TestOperationsPreserveBudget(t *testing.T) {
	t.Parallel()

	r := rand.New(rand.NewPCG(7, 11))
	keys := model.SourceKeys()
	a := New()
	for range 2000 {
		key := keys[r.IntN(len(keys))]
		switch r.IntN(5) {
		case 0:
			_ = a.SetWeightViaSlider(key, float64(r.IntN(101)))
		case 1:
			_ = a.ToggleDisable(key)
		case 2:
			_ = a.ToggleEnable(key)
		case 3:
			a.Normalize()
		case 4:
			if r.IntN(10) == 0 {
				a.Reset()
			}
		}
		require.True(t, a.Valid(), "allocation %v", weights(a))
	}
}

func TestDisableThenEnableSumsToBudget(t *testing.T) {
	t.Parallel()

	for _, key := range model.SourceKeys() {
		a := New()
		require.NoError(t, a.ToggleDisable(key))
		require.NoError(t, a.ToggleEnable(key))
		assert.Equal(t, 100, a.Total(), key)
		assert.Equal(t, EnableShare, a.Allocation()[key])
	}
}

func TestReset(t *testing.T) {
	t.Parallel()

	a := New()
	require.NoError(t, a.ToggleDisable(model.SourceQuestionnaire))
	require.NoError(t, a.SetWeightViaSlider(model.SourceAIGeneration, 90))
	a.Reset()
	assert.Equal(t, []int{40, 15, 15, 30}, weights(a))
	for _, s := range a.Sources() {
		assert.True(t, s.Enabled)
	}
}

func TestFromSourcesValidation(t *testing.T) {
	t.Parallel()

	full := model.DefaultSources()

	tests := []struct {
		name    string
		sources []model.Source
		want    string
	}{
		{"unknown", append(full[:3:3], model.Source{Key: "email", Enabled: true}), "unknown source"},
		{"duplicate", append(full[:3:3], full[0]), "duplicate source"},
		{"missing", full[:2], "expected 4 sources"},
		{"weight too high", []model.Source{
			{Key: model.SourceAIGeneration, Weight: 140, Enabled: true},
			full[1], full[2], full[3],
		}, "outside 0..100"},
		{"negative weight", []model.Source{
			full[0], {Key: model.SourceWebExtraction, Weight: -5, Enabled: true},
			full[2], full[3],
		}, "outside 0..100"},
		{"none enabled", []model.Source{
			{Key: model.SourceAIGeneration},
			{Key: model.SourceWebExtraction},
			{Key: model.SourceFileUpload},
			{Key: model.SourceQuestionnaire},
		}, "at least one source"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := FromSources(tt.sources)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestFromSourcesNormalizes(t *testing.T) {
	t.Parallel()

	a, err := FromSources([]model.Source{
		{Key: model.SourceAIGeneration, Weight: 60, Enabled: true},
		{Key: model.SourceWebExtraction, Weight: 30, Enabled: false},
		{Key: model.SourceFileUpload, Weight: 20, Enabled: true},
		{Key: model.SourceQuestionnaire, Weight: 20, Enabled: true},
	})
	require.NoError(t, err)
	assert.Equal(t, []int{60, 0, 20, 20}, weights(a))
	assert.Equal(t, "Web Extraction", a.Sources()[1].Label)
}

func TestFromSourcesCanonicalOrder(t *testing.T) {
	t.Parallel()

	a, err := FromSources([]model.Source{
		{Key: model.SourceQuestionnaire, Weight: 30, Enabled: true},
		{Key: model.SourceFileUpload, Weight: 15, Enabled: true},
		{Key: model.SourceWebExtraction, Weight: 15, Enabled: true},
		{Key: model.SourceAIGeneration, Weight: 40, Enabled: true},
	})
	require.NoError(t, err)

	var keys []model.SourceKey
	for _, s := range a.Sources() {
		keys = append(keys, s.Key)
	}
	assert.Equal(t, model.SourceKeys(), keys)
	assert.Equal(t, []int{40, 15, 15, 30}, weights(a))

	require.NoError(t, a.SetWeightViaSlider(model.SourceAIGeneration, 60))
	assert.Equal(t, []int{60, 10, 10, 20}, weights(a))
}
