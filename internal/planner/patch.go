package planner

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/tidwall/sjson"
)

// Stage names one of the two repairable steps of a run.
type Stage string

const (
	StagePreprocess Stage = "preprocess"
	StageModeling   Stage = "modeling"
)

// Patch is a repair suggestion for a single stage: top-level fields of that stage's
// sub-structure, merged shallowly and not re-validated.
type Patch struct {
	Stage  Stage
	Fields map[string]json.RawMessage
}

// Empty reports whether applying p changes nothing.
func (p Patch) Empty() bool {
	return len(p.Fields) == 0
}

// MarshalJSON renders the patch in its wire shape, {"<stage>": {...}}.
func (p Patch) MarshalJSON() ([]byte, error) {
	fields := p.Fields
	if fields == nil {
		fields = map[string]json.RawMessage{}
	}
	return json.Marshal(map[string]map[string]json.RawMessage{string(p.Stage): fields})
}

// ApplyPreprocessPatch returns cur with patch fields overriding; cur is not modified.
func ApplyPreprocessPatch(cur Preprocess, patch Patch) (Preprocess, error) {
	if patch.Stage != StagePreprocess {
		return cur, fmt.Errorf("patch for %q applied to preprocess", patch.Stage)
	}
	return applyPatch(cur, patch.Fields)
}

// ApplyModelingPatch returns cur with patch fields overriding; cur is not modified.
func ApplyModelingPatch(cur Modeling, patch Patch) (Modeling, error) {
	if patch.Stage != StageModeling {
		return cur, fmt.Errorf("patch for %q applied to modeling", patch.Stage)
	}
	cur.Candidates = append([]string(nil), cur.Candidates...)
	return applyPatch(cur, patch.Fields)
}

func applyPatch[T any](cur T, fields map[string]json.RawMessage) (T, error) {
	if len(fields) == 0 {
		return cur, nil
	}
	doc, err := json.Marshal(cur)
	if err != nil {
		return cur, fmt.Errorf("marshal stage: %w", err)
	}

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		doc, err = sjson.SetRawBytes(doc, escapePathKey(k), bytes.TrimSpace(fields[k]))
		if err != nil {
			return cur, fmt.Errorf("patch field %s: %w", k, err)
		}
	}

	var out T
	if err := json.Unmarshal(doc, &out); err != nil {
		return cur, fmt.Errorf("decode patched stage: %w", err)
	}
	return out, nil
}

func escapePathKey(key string) string {
	var b strings.Builder
	for _, r := range key {
		switch r {
		case '.', '*', '?', '|', '#', '@', '\\', ':':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
