package canon

import (
	"reflect"
	"testing"

	"github.com/educheck/educheck/internal/model"
)

func TestBuildIndex(t *testing.T) {
	idx := BuildIndex([]string{"1", "2a", "2b", "3"})

	wantOrdered := []string{"1", "2a", "2b", "3"}
	wantCanonical := []string{"1", "2", "3", "4"}
	if !reflect.DeepEqual(idx.Ordered, wantOrdered) {
		t.Errorf("Ordered = %v, want %v", idx.Ordered, wantOrdered)
	}
	if !reflect.DeepEqual(idx.Canonical, wantCanonical) {
		t.Errorf("Canonical = %v, want %v", idx.Canonical, wantCanonical)
	}
	wantC2L := map[string]string{"1": "1", "2": "2a", "3": "2b", "4": "3"}
	if !reflect.DeepEqual(idx.CanonicalToLabel, wantC2L) {
		t.Errorf("CanonicalToLabel = %v, want %v", idx.CanonicalToLabel, wantC2L)
	}
	if idx.Degraded {
		t.Error("index from an ordered label list must not be degraded")
	}
}

func TestBuildIndexContiguousDespiteGaps(t *testing.T) {
	// Original numbering has gaps and odd sub-labels; canonical positions
	// must still be 1..N with no holes.
	idx := BuildIndex([]string{"Q3", "Q7", "Q7a", "Q20"})
	if got := idx.Canonical; !reflect.DeepEqual(got, []string{"1", "2", "3", "4"}) {
		t.Errorf("Canonical = %v, want contiguous 1..4", got)
	}
}

func TestBuildIndexIdempotent(t *testing.T) {
	labels := []string{"1", "2a", "2b", "10", "misc"}
	a := BuildIndex(labels)
	b := BuildIndex(labels)
	if !reflect.DeepEqual(a.LabelToCanonical, b.LabelToCanonical) {
		t.Errorf("LabelToCanonical differs between runs: %v vs %v", a.LabelToCanonical, b.LabelToCanonical)
	}
	if !reflect.DeepEqual(a.CanonicalToLabel, b.CanonicalToLabel) {
		t.Errorf("CanonicalToLabel differs between runs: %v vs %v", a.CanonicalToLabel, b.CanonicalToLabel)
	}
}

func TestBuildIndexSkipsDuplicatesAndBlanks(t *testing.T) {
	idx := BuildIndex([]string{"1", "", "2", "1", "3"})
	if got := idx.Ordered; !reflect.DeepEqual(got, []string{"1", "2", "3"}) {
		t.Errorf("Ordered = %v, want [1 2 3]", got)
	}
}

func TestBuildDegradedIndex(t *testing.T) {
	raw := model.NewAnswerMap()
	raw.Set("Q10", "D")
	raw.Set("Q2", "A")
	raw.Set("Q1", "B")

	idx := BuildDegradedIndex(raw)
	if !idx.Degraded {
		t.Fatal("index built from an unordered answer map must be flagged degraded")
	}
	// Natural label order, not insertion order, so the numbering is stable
	// across runs.
	if got := idx.Ordered; !reflect.DeepEqual(got, []string{"Q1", "Q2", "Q10"}) {
		t.Errorf("Ordered = %v, want [Q1 Q2 Q10]", got)
	}
}
