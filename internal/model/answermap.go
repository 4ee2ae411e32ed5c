package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// AnswerEntry is one label-to-answer binding. Students normally carry a
// single answer; keys may carry several acceptable answers ("any two of the
// following" style).
type AnswerEntry struct {
	Label   string   `bson:"label" json:"label"`
	Answers []string `bson:"answers" json:"answers"`
}

// First returns the first non-blank answer, or "".
func (e AnswerEntry) First() string {
	for _, a := range e.Answers {
		if strings.TrimSpace(a) != "" {
			return strings.TrimSpace(a)
		}
	}
	return ""
}

// Empty reports whether the entry carries no usable answer.
func (e AnswerEntry) Empty() bool {
	return e.First() == ""
}

// AnswerMap is an insertion-ordered label-to-answer mapping. Order matters:
// the aligner's numeric-prefix fallback is first-match-wins, and Go map
// iteration would make that nondeterministic.
type AnswerMap struct {
	Entries []AnswerEntry `bson:"entries" json:"entries"`

	index map[string]int
}

// NewAnswerMap returns an empty ordered answer map.
func NewAnswerMap() *AnswerMap {
	return &AnswerMap{index: map[string]int{}}
}

func (m *AnswerMap) rebuildIndex() {
	m.index = make(map[string]int, len(m.Entries))
	for i, e := range m.Entries {
		key := strings.ToLower(strings.TrimSpace(e.Label))
		if _, ok := m.index[key]; !ok {
			m.index[key] = i
		}
	}
}

// Set records answers for a label, keeping the label's original position if
// it was already present.
func (m *AnswerMap) Set(label string, answers ...string) {
	label = strings.TrimSpace(label)
	if label == "" {
		return
	}
	if m.index == nil {
		m.rebuildIndex()
	}
	key := strings.ToLower(label)
	if i, ok := m.index[key]; ok {
		m.Entries[i].Answers = answers
		return
	}
	m.index[key] = len(m.Entries)
	m.Entries = append(m.Entries, AnswerEntry{Label: label, Answers: answers})
}

// Get looks up an entry by label, case-insensitively.
func (m *AnswerMap) Get(label string) (AnswerEntry, bool) {
	if m == nil || len(m.Entries) == 0 {
		return AnswerEntry{}, false
	}
	if m.index == nil || len(m.index) != len(m.Entries) {
		m.rebuildIndex()
	}
	i, ok := m.index[strings.ToLower(strings.TrimSpace(label))]
	if !ok {
		return AnswerEntry{}, false
	}
	return m.Entries[i], true
}

// Labels returns the labels in insertion order.
func (m *AnswerMap) Labels() []string {
	if m == nil {
		return nil
	}
	out := make([]string, 0, len(m.Entries))
	for _, e := range m.Entries {
		out = append(out, e.Label)
	}
	return out
}

// Len returns the number of entries.
func (m *AnswerMap) Len() int {
	if m == nil {
		return 0
	}
	return len(m.Entries)
}

// MarshalJSON writes the map as an ordered entry list.
func (m *AnswerMap) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.Entries)
}

// UnmarshalJSON accepts either an entry list (our own output) or a plain
// JSON object as returned by the parse collaborator. Object keys are read
// with a token decoder so their source order is preserved; values may be a
// string, a number, or a list of strings.
func (m *AnswerMap) UnmarshalJSON(data []byte) error {
	m.Entries = nil
	m.index = map[string]int{}

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || string(trimmed) == "null" {
		return nil
	}
	if trimmed[0] == '[' {
		var entries []AnswerEntry
		if err := json.Unmarshal(trimmed, &entries); err != nil {
			return err
		}
		for _, e := range entries {
			m.Set(e.Label, e.Answers...)
		}
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("answer map: expected object or array")
	}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		label, _ := keyTok.(string)
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return err
		}
		m.Set(label, decodeAnswerValue(raw)...)
	}
	return nil
}

func decodeAnswerValue(raw json.RawMessage) []string {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || string(trimmed) == "null" {
		return []string{""}
	}
	if trimmed[0] == '[' {
		var items []json.RawMessage
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return []string{""}
		}
		out := make([]string, 0, len(items))
		for _, it := range items {
			out = append(out, flexString(it))
		}
		if len(out) == 0 {
			out = []string{""}
		}
		return out
	}
	return []string{flexString(trimmed)}
}
