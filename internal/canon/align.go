package canon

import (
	"strings"

	"github.com/educheck/educheck/internal/model"
)

// Align maps a raw answer map (arbitrary label forms, arbitrary order) onto
// a target ordered label sequence. Matching per target label:
//
//  1. exact case-insensitive label match;
//  2. numeric-prefix match: the first raw entry, in the raw map's insertion
//     order, whose leading numeric token equals the target's;
//  3. otherwise an explicit empty answer.
//
// The output has exactly one entry per target label — never fewer, never
// more — so a missing answer for one question can never shift a later
// answer into the wrong slot. When several raw entries share a numeric
// prefix the first one in insertion order wins; that is the only
// tie-break.
func Align(target []string, raw *model.AnswerMap) *model.AnswerMap {
	aligned := model.NewAnswerMap()
	for _, label := range target {
		trimmed := strings.TrimSpace(label)
		if trimmed == "" {
			continue
		}
		if entry, ok := raw.Get(trimmed); ok {
			aligned.Set(trimmed, entry.Answers...)
			continue
		}
		if entry, ok := numericMatch(trimmed, raw); ok {
			aligned.Set(trimmed, entry.Answers...)
			continue
		}
		aligned.Set(trimmed, "")
	}
	return aligned
}

func numericMatch(label string, raw *model.AnswerMap) (model.AnswerEntry, bool) {
	num := NumericPrefix(label)
	if num == "" || raw == nil {
		return model.AnswerEntry{}, false
	}
	for _, entry := range raw.Entries {
		if NumericPrefix(entry.Label) == num {
			return entry, true
		}
	}
	return model.AnswerEntry{}, false
}

// MissingPositions returns the canonical positions whose aligned answer is
// empty, in canonical order.
func MissingPositions(idx *Index, aligned *model.AnswerMap) []string {
	var missing []string
	for i, label := range idx.Ordered {
		entry, ok := aligned.Get(label)
		if !ok || entry.Empty() {
			missing = append(missing, idx.Canonical[i])
		}
	}
	return missing
}
