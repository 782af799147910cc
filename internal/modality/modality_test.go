package modality

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func dezena() Modality {
	return Modality{
		ID: "dezena", DisplayName: "Dezena",
		NumberCount: 1, RangeMin: 0, RangeMax: 99,
		MinStakeCents: 100, MaxStakeCents: 100000,
		PayoutMultiplier: 100, MatchRule: MatchExact,
	}
}

func terno() Modality {
	return Modality{
		ID: "terno", DisplayName: "Terno",
		NumberCount: 3, RangeMin: 0, RangeMax: 999,
		MinStakeCents: 100, MaxStakeCents: 100000,
		PayoutMultiplier: 24, MatchRule: MatchAnyOrder,
	}
}

func TestValidateSelection(t *testing.T) {
	tests := []struct {
		name    string
		m       Modality
		numbers []int
		stake   int64
		wantErr string
	}{
		{"ok", dezena(), []int{42}, 1000, ""},
		{"count mismatch", dezena(), []int{42, 17}, 1000, "expected 1 numbers"},
		{"out of range", dezena(), []int{100}, 1000, "out of range"},
		{"duplicate", terno(), []int{7, 7, 9}, 1000, "duplicate number"},
		{"stake below min", dezena(), []int{42}, 50, "below minimum"},
		{"stake above max", dezena(), []int{42}, 200000, "above maximum"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateSelection(tt.m, tt.numbers, tt.stake)
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			require.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidateSelection_CheckOrder(t *testing.T) {
	// quantidade errada E stake fora: o motivo reportado é o primeiro check
	err := ValidateSelection(dezena(), []int{1, 2}, 50)
	require.Error(t, err)
	require.Contains(t, err.Error(), "expected 1 numbers")
}

func TestValidateSelection_AllowRepeats(t *testing.T) {
	m := Modality{ID: "milhar", NumberCount: 4, RangeMin: 0, RangeMax: 9999,
		MinStakeCents: 100, MaxStakeCents: 100000, PayoutMultiplier: 4000,
		MatchRule: MatchExact, AllowRepeats: true}
	require.NoError(t, ValidateSelection(m, []int{7, 7, 7, 7}, 1000))
}

func TestMatches_Exact(t *testing.T) {
	require.True(t, Matches(dezena(), []int{42}, []int{42}))
	require.False(t, Matches(dezena(), []int{42}, []int{17}))

	m := dezena()
	m.NumberCount = 3
	require.True(t, Matches(m, []int{1, 2, 3}, []int{1, 2, 3}))
	require.False(t, Matches(m, []int{1, 2, 3}, []int{3, 2, 1})) // ordem importa
}

func TestMatches_AnyOrder(t *testing.T) {
	m := terno()
	require.True(t, Matches(m, []int{5, 80, 312}, []int{312, 5, 80}))
	require.False(t, Matches(m, []int{5, 80, 312}, []int{312, 5, 81}))
}

func TestMatches_LengthMismatch(t *testing.T) {
	require.False(t, Matches(terno(), []int{1, 2}, []int{1, 2, 3}))
}

func TestValidateResult(t *testing.T) {
	require.NoError(t, ValidateResult(dezena(), []int{42}))
	require.Error(t, ValidateResult(dezena(), []int{42, 17}))
	require.Error(t, ValidateResult(dezena(), []int{-1}))
}

func TestRegistry_Get(t *testing.T) {
	reg := NewRegistry([]Modality{dezena(), terno()})

	m, err := reg.Get("dezena")
	require.NoError(t, err)
	require.Equal(t, int64(100), m.PayoutMultiplier)

	_, err = reg.Get("quadra")
	require.ErrorIs(t, err, ErrUnknownModality)

	require.Len(t, reg.All(), 2)
}
