package canon

import (
	"sort"
	"strconv"

	"github.com/educheck/educheck/internal/model"
)

// Index assigns every question of the authoritative document a canonical
// position "1".."N" in document reading order. It is the join key across
// question paper, answer key and every student submission, built once per
// evaluation run and read-only afterwards.
type Index struct {
	// Ordered holds the original labels in canonical order.
	Ordered []string
	// Canonical holds the positions "1".."N", parallel to Ordered.
	Canonical        []string
	LabelToCanonical map[string]string
	CanonicalToLabel map[string]string
	// Degraded is set when the ordering came from an unordered source (no
	// question paper available); positions are still contiguous but may not
	// reflect document layout.
	Degraded bool
}

// BuildIndex numbers a flattened label sequence. Positions are contiguous
// integers starting at 1 regardless of gaps or sub-labels in the originals.
// Idempotent: the same input always yields identical maps.
func BuildIndex(labels []string) *Index {
	idx := &Index{
		Ordered:          make([]string, 0, len(labels)),
		Canonical:        make([]string, 0, len(labels)),
		LabelToCanonical: make(map[string]string, len(labels)),
		CanonicalToLabel: make(map[string]string, len(labels)),
	}
	for _, label := range labels {
		if label == "" {
			continue
		}
		if _, dup := idx.LabelToCanonical[label]; dup {
			continue
		}
		pos := strconv.Itoa(len(idx.Ordered) + 1)
		idx.Ordered = append(idx.Ordered, label)
		idx.Canonical = append(idx.Canonical, pos)
		idx.LabelToCanonical[label] = pos
		idx.CanonicalToLabel[pos] = label
	}
	return idx
}

// BuildDegradedIndex numbers the labels of a raw answer map when no
// authoritative ordering exists. The labels are sorted into natural label
// order first so the numbering is at least deterministic, and the index is
// flagged degraded for the caller.
func BuildDegradedIndex(m *model.AnswerMap) *Index {
	labels := m.Labels()
	sort.SliceStable(labels, func(i, j int) bool {
		return SortKey(labels[i]).Less(SortKey(labels[j]))
	})
	idx := BuildIndex(labels)
	idx.Degraded = true
	return idx
}

// Len returns the number of canonical positions.
func (idx *Index) Len() int { return len(idx.Ordered) }
