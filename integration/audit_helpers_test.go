package integration_test

import (
	"database/sql"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/tidwall/gjson"
	_ "modernc.org/sqlite"
)

// auditEvent is one row of the workspace audit table.
type auditEvent struct {
	Actor   string
	Type    string
	Payload string
}

func auditDB(workspace string) string {
	return filepath.Join(workspace, "audit", "audit.sqlite")
}

func loadAuditEvents(t *testing.T, dbPath string) []auditEvent {
	t.Helper()
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		t.Fatalf("open audit db: %v", err)
	}
	defer func() {
		_ = db.Close()
	}()

	rows, err := db.Query("SELECT actor, type, payload_json FROM events ORDER BY id")
	if err != nil {
		t.Fatalf("query audit events: %v", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var events []auditEvent
	for rows.Next() {
		var e auditEvent
		if err := rows.Scan(&e.Actor, &e.Type, &e.Payload); err != nil {
			t.Fatalf("scan audit event: %v", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		t.Fatalf("iterate audit events: %v", err)
	}
	return events
}

func requireAuditEvents(t *testing.T, dbPath string, want []string) {
	t.Helper()
	seen := map[string]bool{}
	for _, e := range loadAuditEvents(t, dbPath) {
		seen[e.Type] = true
	}
	for _, eventType := range want {
		if !seen[eventType] {
			t.Fatalf("missing audit event %s in %s", eventType, dbPath)
		}
	}
}

// runTrail is what the audit table says about one run: the pipeline states in
// order and the RunLog keys in write order.
type runTrail struct {
	States []string
	Keys   []string
}

func loadRunTrail(t *testing.T, dbPath, runID string) runTrail {
	t.Helper()
	var trail runTrail
	for _, e := range loadAuditEvents(t, dbPath) {
		if gjson.Get(e.Payload, "run_id").String() != runID {
			continue
		}
		switch {
		case e.Actor == "pipeline" && strings.HasPrefix(e.Type, "state_"):
			trail.States = append(trail.States, strings.TrimPrefix(e.Type, "state_"))
		case e.Actor == "runlog" && e.Type == "runlog_record":
			trail.Keys = append(trail.Keys, gjson.Get(e.Payload, "key").String())
		}
	}
	return trail
}

// requireRunTrail checks that every state and key in the persisted run log was
// mirrored to the audit table in the same order.
func requireRunTrail(t *testing.T, workspace string, runLog []byte) runTrail {
	t.Helper()
	runID := gjson.GetBytes(runLog, "run_id").String()
	trail := loadRunTrail(t, auditDB(workspace), runID)

	var states []string
	for _, s := range gjson.GetBytes(runLog, "steps.#.state").Array() {
		states = append(states, s.String())
	}
	if !slices.Equal(trail.States, states) {
		t.Fatalf("audit states %v, run log steps %v", trail.States, states)
	}

	var keys []string
	gjson.ParseBytes(runLog).ForEach(func(key, _ gjson.Result) bool {
		if k := key.String(); k != "run_id" && k != "steps" {
			keys = append(keys, k)
		}
		return true
	})
	if !slices.Equal(trail.Keys, keys) {
		t.Fatalf("audit runlog_record keys %v, run log keys %v", trail.Keys, keys)
	}
	return trail
}
