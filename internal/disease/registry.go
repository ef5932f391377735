package disease

import (
	"sort"
	"sync"
	"time"

	"impfportal/pkg/domain"
	dErrors "impfportal/pkg/domain-errors"
)

const day = 24 * time.Hour

// Registry resolves disease identifiers to their rule configuration. It is
// safe for concurrent use; campaign operators register new diseases at
// startup, readers dominate afterwards.
type Registry struct {
	mu    sync.RWMutex
	rules map[domain.DiseaseID]Rules
}

// NewRegistry returns a registry seeded with the campaign's default diseases.
func NewRegistry() *Registry {
	r := &Registry{rules: make(map[domain.DiseaseID]Rules)}
	for _, rules := range Defaults() {
		r.rules[rules.DiseaseID] = rules
	}
	return r
}

// Defaults returns the built-in disease configurations.
func Defaults() []Rules {
	return []Rules{
		{
			DiseaseID:                       "covid19",
			Name:                            "COVID-19",
			PrimaryDoses:                    2,
			MinInterval:                     28 * day,
			MaxInterval:                     42 * day,
			AcceleratedMinInterval:          21 * day,
			BoosterSupported:                true,
			BoosterInterval:                 180 * day,
			ValidityDuration:                270 * day,
			RecoveryValidityDuration:        180 * day,
			SingleDoseWithRecoveryCompletes: true,
			SelfPayerSupported:              true,
			SelfPayerLeadTime:               60 * day,
		},
		{
			DiseaseID:        "fsme",
			Name:             "FSME (tick-borne encephalitis)",
			PrimaryDoses:     2,
			MinInterval:      14 * day,
			BoosterSupported: true,
			BoosterInterval:  3 * 365 * day,
			ValidityDuration: 3 * 365 * day,
		},
		{
			DiseaseID:        "herpeszoster",
			Name:             "Herpes Zoster",
			PrimaryDoses:     1,
			BoosterSupported: true,
			BoosterInterval:  60 * day,
			ValidityDuration: 10 * 365 * day,
		},
	}
}

// Resolve returns the rules for a disease, or CodeNotFound for an unknown
// identifier.
func (r *Registry) Resolve(diseaseID domain.DiseaseID) (Rules, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rules, ok := r.rules[diseaseID]
	if !ok {
		return Rules{}, dErrors.Newf(dErrors.CodeNotFound, "unknown disease: %s", diseaseID)
	}
	return rules, nil
}

// Register adds or replaces a disease configuration after validating it.
func (r *Registry) Register(rules Rules) error {
	if err := rules.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rules[rules.DiseaseID] = rules
	return nil
}

// List returns all registered diseases ordered by identifier.
func (r *Registry) List() []Rules {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Rules, 0, len(r.rules))
	for _, rules := range r.rules {
		out = append(out, rules)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DiseaseID < out[j].DiseaseID })
	return out
}
