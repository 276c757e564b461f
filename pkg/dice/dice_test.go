package dice

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		notation string
		want     Spec
	}{
		{"d20", Spec{Count: 1, Sides: 20}},
		{"2d6", Spec{Count: 2, Sides: 6}},
		{"2d6+1", Spec{Count: 2, Sides: 6, Modifier: 1}},
		{"4d8-2", Spec{Count: 4, Sides: 8, Modifier: -2}},
		{"1D10 + 3", Spec{Count: 1, Sides: 10, Modifier: 3}},
		{"d100", Spec{Count: 1, Sides: 100}},
	}
	for _, tt := range tests {
		t.Run(tt.notation, func(t *testing.T) {
			got, err := Parse(tt.notation)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseInvalid(t *testing.T) {
	invalid := []string{"", "banana", "d", "2d", "0d6", "2d0", "-1d6", "2d6+x", "2d6+1+2"}
	for _, notation := range invalid {
		t.Run(notation, func(t *testing.T) {
			_, err := Parse(notation)
			assert.Error(t, err)
		})
	}
}

func TestSpecString(t *testing.T) {
	assert.Equal(t, "1d20", Spec{Count: 1, Sides: 20}.String())
	assert.Equal(t, "2d6+1", Spec{Count: 2, Sides: 6, Modifier: 1}.String())
	assert.Equal(t, "4d8-2", Spec{Count: 4, Sides: 8, Modifier: -2}.String())
}

func TestRollDeterministic(t *testing.T) {
	seed := int64(1)
	rng := rand.New(rand.NewSource(seed))
	expected := []int{rng.Intn(6) + 1, rng.Intn(6) + 1}

	result, err := Roll(Spec{Count: 2, Sides: 6, Modifier: 3}, seed)
	require.NoError(t, err)

	assert.Equal(t, expected, result.Results)
	assert.Equal(t, expected[0]+expected[1]+3, result.Total)
	assert.Equal(t, "2d6+3", result.Notation)

	again, err := Roll(Spec{Count: 2, Sides: 6, Modifier: 3}, seed)
	require.NoError(t, err)
	assert.Equal(t, result, again, "same seed must reproduce the roll")
}

func TestRollBounds(t *testing.T) {
	result, err := Roll(Spec{Count: 100, Sides: 4}, 7)
	require.NoError(t, err)
	require.Len(t, result.Results, 100)
	for _, v := range result.Results {
		assert.GreaterOrEqual(t, v, 1)
		assert.LessOrEqual(t, v, 4)
	}
}

func TestRollInvalidSpec(t *testing.T) {
	_, err := Roll(Spec{Count: 0, Sides: 6}, 1)
	assert.ErrorIs(t, err, ErrInvalidSpec)

	_, err = Roll(Spec{Count: 1, Sides: 0}, 1)
	assert.ErrorIs(t, err, ErrInvalidSpec)
}

func TestRollNotation(t *testing.T) {
	result, err := RollNotation("1d1+5", 42)
	require.NoError(t, err)
	assert.Equal(t, 6, result.Total)
	assert.Equal(t, []int{1}, result.Results)

	_, err = RollNotation("nonsense", 42)
	assert.ErrorIs(t, err, ErrInvalidNotation)
}
