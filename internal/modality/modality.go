package modality

import (
	"errors"
	"fmt"
	"sort"
)

// Regra de comparação entre números apostados e números sorteados.
const (
	MatchExact    = "exact"     // sequência na ordem exata
	MatchAnyOrder = "any_order" // mesmo conjunto, em qualquer ordem (ex: terno)
)

var ErrUnknownModality = errors.New("unknown modality")

// Modality é a regra de uma modalidade de aposta. Imutável após o load inicial.
type Modality struct {
	ID               string
	DisplayName      string
	NumberCount      int
	RangeMin         int
	RangeMax         int
	MinStakeCents    int64
	MaxStakeCents    int64
	PayoutMultiplier int64
	MatchRule        string
	AllowRepeats     bool
}

// ValidationError carrega o motivo estruturado de uma recusa de aposta.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return "invalid selection: " + e.Reason }

// ValidateSelection valida a seleção do jogador contra a regra da modalidade.
// Ordem dos checks: quantidade, faixa, repetição, stake mínimo, stake máximo.
func ValidateSelection(m Modality, numbers []int, stakeCents int64) error {
	if len(numbers) != m.NumberCount {
		return &ValidationError{Reason: fmt.Sprintf("expected %d numbers, got %d", m.NumberCount, len(numbers))}
	}
	for _, n := range numbers {
		if n < m.RangeMin || n > m.RangeMax {
			return &ValidationError{Reason: fmt.Sprintf("number %d out of range [%d,%d]", n, m.RangeMin, m.RangeMax)}
		}
	}
	if !m.AllowRepeats {
		seen := make(map[int]struct{}, len(numbers))
		for _, n := range numbers {
			if _, ok := seen[n]; ok {
				return &ValidationError{Reason: fmt.Sprintf("duplicate number %d", n)}
			}
			seen[n] = struct{}{}
		}
	}
	if stakeCents < m.MinStakeCents {
		return &ValidationError{Reason: fmt.Sprintf("stake below minimum of %d cents", m.MinStakeCents)}
	}
	if stakeCents > m.MaxStakeCents {
		return &ValidationError{Reason: fmt.Sprintf("stake above maximum of %d cents", m.MaxStakeCents)}
	}
	return nil
}

// ValidateResult valida números sorteados informados pelo operador.
// Mesmas regras de quantidade e faixa da seleção do jogador.
func ValidateResult(m Modality, winning []int) error {
	if len(winning) != m.NumberCount {
		return &ValidationError{Reason: fmt.Sprintf("expected %d winning numbers, got %d", m.NumberCount, len(winning))}
	}
	for _, n := range winning {
		if n < m.RangeMin || n > m.RangeMax {
			return &ValidationError{Reason: fmt.Sprintf("winning number %d out of range [%d,%d]", n, m.RangeMin, m.RangeMax)}
		}
	}
	return nil
}

// Matches decide se a aposta ganha contra os números sorteados.
// A regra vem da modalidade (coluna match_rule), nunca do call site.
func Matches(m Modality, numbers, winning []int) bool {
	if len(numbers) != len(winning) {
		return false
	}
	switch m.MatchRule {
	case MatchAnyOrder:
		a := append([]int(nil), numbers...)
		b := append([]int(nil), winning...)
		sort.Ints(a)
		sort.Ints(b)
		return equal(a, b)
	default:
		return equal(numbers, winning)
	}
}

func equal(a, b []int) bool {
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
