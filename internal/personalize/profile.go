package personalize

import "sort"

// Tone and verbosity category sets. The axes are fixed; interest maps are
// free-form and bounded by pruning instead.
var (
	ToneCategories      = []string{"formal", "casual", "neutral"}
	VerbosityCategories = []string{"brief", "detailed", "neutral"}
)

const initialAxisWeight = 0.22

// Profile is one user's adaptive personalization state. All weights are
// non-negative; axis weights do not need to sum to 1.
type Profile struct {
	Role               string             `json:"role"`
	ToneScore          map[string]float64 `json:"tone_score"`
	VerbosityScore     map[string]float64 `json:"verbosity_score"`
	TechnologyInterest map[string]float64 `json:"technology_interest"`
	DomainInterest     map[string]float64 `json:"domain_interest"`
	RecentQueries      []string           `json:"recent_queries"`
}

// NewProfile creates a default profile with near-uniform axis weights and
// empty interest maps.
func NewProfile(role string) *Profile {
	return &Profile{
		Role: role,
		ToneScore: map[string]float64{
			"formal": initialAxisWeight, "casual": initialAxisWeight, "neutral": initialAxisWeight,
		},
		VerbosityScore: map[string]float64{
			"brief": initialAxisWeight, "detailed": initialAxisWeight, "neutral": initialAxisWeight,
		},
		TechnologyInterest: map[string]float64{},
		DomainInterest:     map[string]float64{},
		RecentQueries:      []string{},
	}
}

// Clone returns a deep copy safe to hand outside the engine's locks.
func (p *Profile) Clone() *Profile {
	if p == nil {
		return nil
	}
	cp := &Profile{
		Role:               p.Role,
		ToneScore:          copyScores(p.ToneScore),
		VerbosityScore:     copyScores(p.VerbosityScore),
		TechnologyInterest: copyScores(p.TechnologyInterest),
		DomainInterest:     copyScores(p.DomainInterest),
		RecentQueries:      make([]string, len(p.RecentQueries)),
	}
	copy(cp.RecentQueries, p.RecentQueries)
	return cp
}

func copyScores(m map[string]float64) map[string]float64 {
	cp := make(map[string]float64, len(m))
	for k, v := range m {
		cp[k] = v
	}
	return cp
}

// TopK returns the k highest-weighted keys of m in descending weight order.
// Tie order between equal weights is unspecified.
func TopK(m map[string]float64, k int) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool { return m[keys[i]] > m[keys[j]] })
	if len(keys) > k {
		keys = keys[:k]
	}
	return keys
}
