package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"

	"autotab/internal/planner"
)

const repairPreamble = "You are debugging a failing ML pipeline plan."

func stageLine(stage planner.Stage) string {
	return "FAILED_STAGE: " + string(stage)
}

// Repairer asks a provider for a patch to one failed stage.
type Repairer struct {
	Provider Provider
}

func NewRepairer(p Provider) *Repairer {
	return &Repairer{Provider: p}
}

func (r *Repairer) Prompt(stage planner.Stage, errText string, problem planner.ProblemType) string {
	var b strings.Builder
	b.WriteString(repairPreamble)
	b.WriteString(" Output ONLY a JSON patch (subset keys).\n")
	b.WriteString(stageLine(stage))
	b.WriteString("\nPROBLEM: ")
	b.WriteString(string(problem))
	b.WriteString("\nERROR:\n```\n")
	b.WriteString(errText)
	b.WriteString("\n```\n")
	b.WriteString("Fix by adjusting parameters or choosing alternative model(s).\n")
	fmt.Fprintf(&b, "Return ONLY a JSON patch like {\"%s\": {...}}.", stage)
	return b.String()
}

// Repair sends one repair request. The returned patch keeps only the object under the
// stage key; a reply without one yields an empty patch. Fields are not validated.
func (r *Repairer) Repair(ctx context.Context, stage planner.Stage, errText string, problem planner.ProblemType) (planner.Patch, error) {
	patch := planner.Patch{Stage: stage}
	reply, err := r.Provider.Complete(ctx, r.Prompt(stage, errText, problem))
	if err != nil {
		return patch, fmt.Errorf("repair via %s: %w", r.Provider.Name(), err)
	}
	raw, err := ExtractJSON(reply)
	if err != nil {
		return patch, fmt.Errorf("repair via %s: %w", r.Provider.Name(), err)
	}
	section := gjson.GetBytes(raw, gjson.Escape(string(stage)))
	if !section.IsObject() {
		return patch, nil
	}
	patch.Fields = map[string]json.RawMessage{}
	section.ForEach(func(key, value gjson.Result) bool {
		patch.Fields[key.String()] = json.RawMessage(value.Raw)
		return true
	})
	return patch, nil
}
