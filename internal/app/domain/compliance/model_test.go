package compliance

import (
	"fmt"
	"testing"
)

func TestScoreEvidenceBounds(t *testing.T) {
	required := []string{"origin", "lab", "chain", "audit"}
	for weight := 1; weight <= 10; weight++ {
		for present := 0; present <= len(required); present++ {
			evidence := make(map[string]string)
			for _, key := range required[:present] {
				evidence[key] = "ref"
			}
			score := ScoreEvidence(required, evidence, weight)
			if score < 0 || score > 100 {
				t.Fatalf("weight %d present %d: score %d out of [0,100]", weight, present, score)
			}
		}
	}
}

func TestScoreEvidenceDeterministic(t *testing.T) {
	required := []string{"origin", "lab"}
	evidence := map[string]string{"origin": "doc-1", "lab": "doc-2", "extra": "noise"}

	first := ScoreEvidence(required, evidence, 7)
	for i := 0; i < 100; i++ {
		if got := ScoreEvidence(required, evidence, 7); got != first {
			t.Fatalf("run %d: score %d, want %d", i, got, first)
		}
	}
}

func TestScoreEvidenceMonotoneInEvidence(t *testing.T) {
	required := []string{"a", "b", "c", "d", "e"}
	evidence := make(map[string]string)

	prev := ScoreEvidence(required, evidence, 6)
	for _, key := range required {
		evidence[key] = "ref"
		score := ScoreEvidence(required, evidence, 6)
		if score < prev {
			t.Fatalf("adding %q dropped the score from %d to %d", key, prev, score)
		}
		prev = score
	}
}

func TestScoreEvidenceIgnoresIrrelevantKeys(t *testing.T) {
	required := []string{"origin"}
	base := map[string]string{"origin": "doc"}
	noisy := map[string]string{"origin": "doc", "rumor": "x", "padding": "y"}

	if ScoreEvidence(required, base, 5) != ScoreEvidence(required, noisy, 5) {
		t.Fatal("keys outside the required set must not change the score")
	}
}

func TestScoreEvidenceEdgeCases(t *testing.T) {
	// Full evidence at maximum weight saturates the scale.
	if got := ScoreEvidence([]string{"a"}, map[string]string{"a": "x"}, 10); got != 100 {
		t.Fatalf("full evidence weight 10: score %d, want 100", got)
	}
	// Missing evidence scores zero regardless of weight.
	if got := ScoreEvidence([]string{"a", "b"}, nil, 10); got != 0 {
		t.Fatalf("nil evidence: score %d, want 0", got)
	}
	// Empty values do not count as present.
	if got := ScoreEvidence([]string{"a"}, map[string]string{"a": ""}, 10); got != 0 {
		t.Fatalf("empty value: score %d, want 0", got)
	}
	// No required keys counts as complete.
	if got := ScoreEvidence(nil, nil, 10); got != 100 {
		t.Fatalf("no required keys weight 10: score %d, want 100", got)
	}
	if got := ScoreEvidence(nil, nil, 4); got != 70 {
		t.Fatalf("no required keys weight 4: score %d, want 70", got)
	}
}

func ExampleScoreEvidence() {
	required := []string{"origin-certificate", "lab-report"}
	evidence := map[string]string{"origin-certificate": "ipfs://Qm..."}
	fmt.Println(ScoreEvidence(required, evidence, 10))
	// Output: 50
}
