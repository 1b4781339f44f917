package audit

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// ErrKeyRecorded is returned when a RunLog key is written twice.
var ErrKeyRecorded = errors.New("runlog key already recorded")

// Step is one state-machine transition in a RunLog.
type Step struct {
	State  string `json:"state"`
	At     string `json:"at"`
	Detail string `json:"detail,omitempty"`
}

// RunLog is the append-only audit record of one run. Every write is flushed to Path
// (when set) and mirrored to Audit (when set) before returning.
type RunLog struct {
	RunID string
	Path  string
	Audit *Logger

	keys   []string
	values map[string]any
	steps  []Step
	now    func() time.Time
}

// NewRunLog returns an empty RunLog. An empty path keeps the log in memory only.
func NewRunLog(runID, path string, auditLogger *Logger) *RunLog {
	return &RunLog{
		RunID:  runID,
		Path:   path,
		Audit:  auditLogger,
		values: map[string]any{},
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Record appends key with value. Keys cannot be overwritten.
func (l *RunLog) Record(key string, value any) error {
	if _, ok := l.values[key]; ok {
		return fmt.Errorf("%w: %s", ErrKeyRecorded, key)
	}
	l.keys = append(l.keys, key)
	l.values[key] = value

	if l.Audit != nil {
		_ = l.Audit.LogEvent("runlog", "runlog_record", map[string]any{
			"run_id": l.RunID,
			"key":    key,
			"value":  value,
		})
	}
	return l.flush()
}

// Step appends a state transition.
func (l *RunLog) Step(state, detail string) error {
	l.steps = append(l.steps, Step{
		State:  state,
		At:     l.now().Format(time.RFC3339Nano),
		Detail: detail,
	})
	if l.Audit != nil {
		_ = l.Audit.LogEvent("pipeline", "state_"+state, map[string]any{
			"run_id": l.RunID,
			"detail": detail,
		})
	}
	return l.flush()
}

// Get returns the recorded value for key.
func (l *RunLog) Get(key string) (any, bool) {
	v, ok := l.values[key]
	return v, ok
}

// Keys returns recorded keys in write order.
func (l *RunLog) Keys() []string {
	return append([]string(nil), l.keys...)
}

// Steps returns recorded transitions in order.
func (l *RunLog) Steps() []Step {
	return append([]Step(nil), l.steps...)
}

// MarshalJSON renders run_id, steps and then every recorded key in write order.
func (l *RunLog) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	if err := writeField(&buf, "run_id", l.RunID, true); err != nil {
		return nil, err
	}
	steps := l.steps
	if steps == nil {
		steps = []Step{}
	}
	if err := writeField(&buf, "steps", steps, false); err != nil {
		return nil, err
	}
	for _, key := range l.keys {
		if err := writeField(&buf, key, l.values[key], false); err != nil {
			return nil, err
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func writeField(buf *bytes.Buffer, key string, value any, first bool) error {
	if !first {
		buf.WriteByte(',')
	}
	k, err := json.Marshal(key)
	if err != nil {
		return err
	}
	v, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal runlog %s: %w", key, err)
	}
	buf.Write(k)
	buf.WriteByte(':')
	buf.Write(v)
	return nil
}

func (l *RunLog) flush() error {
	if l.Path == "" {
		return nil
	}
	raw, err := l.MarshalJSON()
	if err != nil {
		return err
	}
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, raw, "", "  "); err != nil {
		return fmt.Errorf("indent runlog: %w", err)
	}
	pretty.WriteByte('\n')
	return WriteFileAtomic(l.Path, pretty.Bytes())
}

// LoadRunLog reads a persisted RunLog as raw fields.
func LoadRunLog(path string) (map[string]json.RawMessage, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read runlog: %w", err)
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("parse runlog: %w", err)
	}
	return fields, nil
}

// WriteFileAtomic writes data to path through a temp file and rename.
func WriteFileAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("ensure %s dir: %w", filepath.Base(path), err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		_ = os.Remove(tmpName)
	}()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename %s: %w", filepath.Base(path), err)
	}
	return nil
}
