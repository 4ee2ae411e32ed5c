package canon

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// maxDepth bounds recursive descent through the parts tree. Extraction
// output is shallow in practice; anything deeper is noise or a cycle smuggled
// through references.
const maxDepth = 12

// Node is a tagged view of the nested parts structure returned by the
// structured-parse collaborator: either a leaf carrying a question label, or
// an ordered group of children.
type Node struct {
	Label    string
	Children []Node
}

// Leaf reports whether the node carries a label of its own.
func (n Node) Leaf() bool { return n.Label != "" }

// Keys under which extraction output nests sub-questions.
var nestedKeys = []string{"subparts", "parts", "questions", "items"}

// DecodeParts converts the raw "parts" JSON of a structured parse into a
// Node tree, preserving source key order. Malformed or oversized input
// yields an empty group; this function never fails.
func DecodeParts(raw json.RawMessage) Node {
	val, ok := decodeOrdered(raw)
	if !ok {
		return Node{}
	}
	// The top level maps part names ("Part A") to their questions; part
	// names themselves are not question labels.
	if val.kind == kindObject {
		var root Node
		for _, kv := range val.object {
			part := kv.value
			if part.kind == kindObject {
				if qs, ok := part.field("questions"); ok {
					root.Children = append(root.Children, buildNode(qs, 1))
					continue
				}
			}
			root.Children = append(root.Children, buildNode(part, 1))
		}
		return root
	}
	return buildNode(val, 0)
}

// buildNode mirrors how extraction output labels questions: object keys are
// labels, list elements carry an id/label field, primitives are labels.
func buildNode(val orderedValue, depth int) Node {
	if depth > maxDepth {
		return Node{}
	}
	switch val.kind {
	case kindObject:
		var group Node
		for _, kv := range val.object {
			leaf := Node{Label: strings.TrimSpace(kv.key)}
			if kv.value.kind == kindObject {
				for _, nk := range nestedKeys {
					if sub, ok := kv.value.field(nk); ok && sub.kind != kindScalar {
						leaf.Children = append(leaf.Children, buildNode(sub, depth+1))
					}
				}
			}
			group.Children = append(group.Children, leaf)
		}
		return group
	case kindArray:
		var group Node
		for _, el := range val.array {
			switch el.kind {
			case kindObject:
				if label, ok := elementLabel(el); ok {
					group.Children = append(group.Children, Node{Label: label})
					continue
				}
				for _, nk := range nestedKeys {
					if sub, ok := el.field(nk); ok && sub.kind != kindScalar {
						group.Children = append(group.Children, buildNode(sub, depth+1))
					}
				}
			case kindArray:
				group.Children = append(group.Children, buildNode(el, depth+1))
			default:
				group.Children = append(group.Children, Node{Label: strings.TrimSpace(el.scalar)})
			}
		}
		return group
	default:
		return Node{Label: strings.TrimSpace(val.scalar)}
	}
}

func elementLabel(el orderedValue) (string, bool) {
	for _, key := range []string{"id", "label", "question_number"} {
		if v, ok := el.field(key); ok && v.kind == kindScalar && strings.TrimSpace(v.scalar) != "" {
			return strings.TrimSpace(v.scalar), true
		}
	}
	return "", false
}

// Flatten walks the tree depth-first in document order and returns the label
// sequence with duplicates removed, first occurrence winning. Blank labels
// are dropped. Pure: the tree is not modified.
func Flatten(root Node) []string {
	seen := make(map[string]struct{})
	var out []string
	var walk func(n Node, depth int)
	walk = func(n Node, depth int) {
		if depth > maxDepth {
			return
		}
		if n.Leaf() {
			if _, dup := seen[n.Label]; !dup {
				seen[n.Label] = struct{}{}
				out = append(out, n.Label)
			}
		}
		for _, c := range n.Children {
			walk(c, depth+1)
		}
	}
	walk(root, 0)
	return out
}

// Ordered JSON representation. encoding/json maps forget key order, which
// would scramble document ordering, so objects are decoded off the token
// stream.

type valueKind int

const (
	kindScalar valueKind = iota
	kindObject
	kindArray
)

type orderedValue struct {
	kind   valueKind
	scalar string
	object []keyedValue
	array  []orderedValue
}

type keyedValue struct {
	key   string
	value orderedValue
}

func (v orderedValue) field(key string) (orderedValue, bool) {
	for _, kv := range v.object {
		if strings.EqualFold(kv.key, key) {
			return kv.value, true
		}
	}
	return orderedValue{}, false
}

func decodeOrdered(raw json.RawMessage) (orderedValue, bool) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || string(trimmed) == "null" {
		return orderedValue{}, false
	}
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()
	val, err := decodeValue(dec, 0)
	if err != nil {
		return orderedValue{}, false
	}
	return val, true
}

func decodeValue(dec *json.Decoder, depth int) (orderedValue, error) {
	tok, err := dec.Token()
	if err != nil {
		return orderedValue{}, err
	}
	return decodeFromToken(dec, tok, depth)
}

func decodeFromToken(dec *json.Decoder, tok json.Token, depth int) (orderedValue, error) {
	if depth > maxDepth {
		return orderedValue{}, errTooDeep
	}
	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			val := orderedValue{kind: kindObject}
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return orderedValue{}, err
				}
				key, _ := keyTok.(string)
				child, err := decodeValue(dec, depth+1)
				if err != nil {
					return orderedValue{}, err
				}
				val.object = append(val.object, keyedValue{key: key, value: child})
			}
			if _, err := dec.Token(); err != nil { // consume '}'
				return orderedValue{}, err
			}
			return val, nil
		case '[':
			val := orderedValue{kind: kindArray}
			for dec.More() {
				child, err := decodeValue(dec, depth+1)
				if err != nil {
					return orderedValue{}, err
				}
				val.array = append(val.array, child)
			}
			if _, err := dec.Token(); err != nil { // consume ']'
				return orderedValue{}, err
			}
			return val, nil
		}
		return orderedValue{}, errBadToken
	case string:
		return orderedValue{kind: kindScalar, scalar: t}, nil
	case json.Number:
		return orderedValue{kind: kindScalar, scalar: t.String()}, nil
	case bool:
		return orderedValue{kind: kindScalar, scalar: strconv.FormatBool(t)}, nil
	case nil:
		return orderedValue{kind: kindScalar, scalar: ""}, nil
	}
	return orderedValue{}, errBadToken
}

var (
	errTooDeep  = jsonError("parts tree exceeds depth limit")
	errBadToken = jsonError("unexpected JSON token")
)

type jsonError string

func (e jsonError) Error() string { return string(e) }
