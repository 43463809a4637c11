package profile

import (
	"encoding/json"
	"errors"
	"strings"
	"sync"

	"nutriflow/internal/config"
)

// UserProfile describes the person meals are suggested for.
type UserProfile struct {
	Name               string   `json:"name"`
	Age                int      `json:"age"`
	Allergies          []string `json:"allergies"`
	PreferredItems     []string `json:"preferred_items"`
	RiskFactors        []string `json:"risk_factors"`
	CuisinePreferences []string `json:"cuisine_preferences"`
}

// FromConfig seeds a profile from the [profile] configuration section.
func FromConfig(cfg config.Profile) UserProfile {
	return UserProfile{
		Name:               cfg.Name,
		Age:                cfg.Age,
		Allergies:          normalizeSet(cfg.Allergies),
		PreferredItems:     cleanList(cfg.PreferredItems),
		RiskFactors:        cleanList(cfg.RiskFactors),
		CuisinePreferences: cleanList(cfg.CuisinePreferences),
	}
}

// Clone returns a deep copy.
func (p UserProfile) Clone() UserProfile {
	p.Allergies = cloneList(p.Allergies)
	p.PreferredItems = cloneList(p.PreferredItems)
	p.RiskFactors = cloneList(p.RiskFactors)
	p.CuisinePreferences = cloneList(p.CuisinePreferences)
	return p
}

// Partial is a profile update. Nil fields keep their current value.
type Partial struct {
	Name               *string   `json:"name,omitempty"`
	Age                *int      `json:"age,omitempty"`
	Allergies          *[]string `json:"allergies,omitempty"`
	PreferredItems     *[]string `json:"preferred_items,omitempty"`
	RiskFactors        *[]string `json:"risk_factors,omitempty"`
	CuisinePreferences *[]string `json:"cuisine_preferences,omitempty"`
}

// UnmarshalJSON accepts the older "food_cusine" and "food_cuisine" keys as
// aliases for cuisine_preferences.
func (p *Partial) UnmarshalJSON(data []byte) error {
	type plain Partial
	var aux struct {
		plain
		FoodCusine  *[]string `json:"food_cusine"`
		FoodCuisine *[]string `json:"food_cuisine"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*p = Partial(aux.plain)
	if p.CuisinePreferences == nil {
		if aux.FoodCuisine != nil {
			p.CuisinePreferences = aux.FoodCuisine
		} else if aux.FoodCusine != nil {
			p.CuisinePreferences = aux.FoodCusine
		}
	}
	return nil
}

// Empty reports whether the update changes nothing.
func (p Partial) Empty() bool {
	return p.Name == nil && p.Age == nil && p.Allergies == nil &&
		p.PreferredItems == nil && p.RiskFactors == nil && p.CuisinePreferences == nil
}

// Validate rejects values that would leave the profile unusable.
func (p Partial) Validate() error {
	if p.Name != nil && strings.TrimSpace(*p.Name) == "" {
		return errors.New("name must not be blank")
	}
	if p.Age != nil && (*p.Age < 0 || *p.Age > 150) {
		return errors.New("age must be between 0 and 150")
	}
	return nil
}

// Store guards the current profile.
type Store struct {
	mu      sync.RWMutex
	current UserProfile
}

// NewStore returns a store holding a copy of initial.
func NewStore(initial UserProfile) *Store {
	return &Store{current: initial.Clone()}
}

// Get returns a deep copy of the current profile.
func (s *Store) Get() UserProfile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current.Clone()
}

// Update merges the non-nil fields of update and returns the resulting profile.
func (s *Store) Update(update Partial) (UserProfile, error) {
	if err := update.Validate(); err != nil {
		return UserProfile{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.current.Clone()
	if update.Name != nil {
		next.Name = strings.TrimSpace(*update.Name)
	}
	if update.Age != nil {
		next.Age = *update.Age
	}
	if update.Allergies != nil {
		next.Allergies = normalizeSet(*update.Allergies)
	}
	if update.PreferredItems != nil {
		next.PreferredItems = cleanList(*update.PreferredItems)
	}
	if update.RiskFactors != nil {
		next.RiskFactors = cleanList(*update.RiskFactors)
	}
	if update.CuisinePreferences != nil {
		next.CuisinePreferences = cleanList(*update.CuisinePreferences)
	}
	s.current = next
	return next.Clone(), nil
}

// Replace swaps the whole profile.
func (s *Store) Replace(p UserProfile) {
	p = p.Clone()
	p.Allergies = normalizeSet(p.Allergies)

	s.mu.Lock()
	s.current = p
	s.mu.Unlock()
}

func cleanList(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// normalizeSet trims and removes case-insensitive duplicates, keeping first spelling.
func normalizeSet(values []string) []string {
	out := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, v := range cleanList(values) {
		key := strings.ToLower(v)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, v)
	}
	return out
}

func cloneList(values []string) []string {
	if values == nil {
		return nil
	}
	return append([]string(nil), values...)
}
