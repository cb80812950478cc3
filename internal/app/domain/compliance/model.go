package compliance

import "time"

// Rule is one industry compliance requirement. Rules become immutable once
// evaluated against at least one check; amendment is by replacement.
type Rule struct {
	ID               uint64
	Code             string
	Title            string
	ApplicableType   string
	Description      string
	Standard         string
	Weight           int
	RequiredEvidence []string
	CheckCount       int64
	CreatedAt        time.Time
}

// ScoreEvidence computes the confidence score for one rule evaluation:
// the fraction of required evidence keys carrying a non-empty value, scaled
// by a weight factor of (10+weight)/20, into [0,100]. A rule with no
// required keys counts as fully evidenced. Deterministic and side-effect-free.
func ScoreEvidence(required []string, evidence map[string]string, weight int) int {
	if weight < 1 {
		weight = 1
	}
	if weight > 10 {
		weight = 10
	}

	present := 0
	for _, key := range required {
		if evidence[key] != "" {
			present++
		}
	}
	total := len(required)
	if total == 0 {
		present, total = 1, 1
	}

	score := present * 100 * (10 + weight) / (total * 20)
	if score > 100 {
		score = 100
	}
	return score
}

// Check is one automated compliance evaluation, append-only.
type Check struct {
	ID          uint64
	ProductID   uint64
	RuleID      uint64
	Score       int
	Passed      bool
	Evidence    map[string]string
	EvidenceRef string
	CheckedAt   time.Time
}

// Stats are O(1) maintained aggregate counters.
type Stats struct {
	Rules       int64
	Checks      int64
	Passed      int64
	Failed      int64
	AvgScore    int
	GeneratedAt time.Time
}
