package modality

import (
	"context"
	"database/sql"
	"fmt"
)

// Registry mantém as modalidades carregadas no startup. Somente leitura depois disso.
type Registry struct {
	byID map[string]Modality
}

func NewRegistry(mods []Modality) *Registry {
	byID := make(map[string]Modality, len(mods))
	for _, m := range mods {
		byID[m.ID] = m
	}
	return &Registry{byID: byID}
}

// LoadRegistry lê a tabela modalities e monta o registry em memória.
func LoadRegistry(ctx context.Context, db *sql.DB) (*Registry, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, display_name, number_count, range_min, range_max,
		       min_stake_cents, max_stake_cents, payout_multiplier, match_rule, allow_repeats
		FROM modalities
		ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("load modalities: %w", err)
	}
	defer rows.Close()

	var mods []Modality
	for rows.Next() {
		var m Modality
		if err := rows.Scan(&m.ID, &m.DisplayName, &m.NumberCount, &m.RangeMin, &m.RangeMax,
			&m.MinStakeCents, &m.MaxStakeCents, &m.PayoutMultiplier, &m.MatchRule, &m.AllowRepeats); err != nil {
			return nil, fmt.Errorf("scan modality: %w", err)
		}
		mods = append(mods, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(mods) == 0 {
		return nil, fmt.Errorf("modalities table is empty; run migrations")
	}
	return NewRegistry(mods), nil
}

func (r *Registry) Get(id string) (Modality, error) {
	m, ok := r.byID[id]
	if !ok {
		return Modality{}, ErrUnknownModality
	}
	return m, nil
}

// All retorna as modalidades em ordem indefinida (uso: listagem na API).
func (r *Registry) All() []Modality {
	out := make([]Modality, 0, len(r.byID))
	for _, m := range r.byID {
		out = append(out, m)
	}
	return out
}
