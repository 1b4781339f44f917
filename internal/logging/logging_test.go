package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLineFormatterIncludesRunIDAndSortedFields(t *testing.T) {
	entry := &log.Entry{
		Time:    time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Level:   log.WarnLevel,
		Message: "automated search failed\n",
		Data: log.Fields{
			"run_id": "20260102-030405-abcd1234",
			"stage":  "modeling",
			"err":    "boom",
		},
	}

	out, err := (&LineFormatter{}).Format(entry)
	require.NoError(t, err)

	line := string(out)
	assert.Equal(t, "[2026-01-02 03:04:05] [20260102-030405-abcd1234] [warn ] automated search failed | err=boom, stage=modeling\n", line)
}

func TestLineFormatterPlaceholderRunID(t *testing.T) {
	entry := &log.Entry{Time: time.Now(), Level: log.InfoLevel, Message: "hello", Data: log.Fields{}}
	out, err := (&LineFormatter{}).Format(entry)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(out), "[--------]"))
}

func TestConfigureToFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, Configure("debug", true, dir))
	t.Cleanup(func() {
		Close()
		_ = Configure("info", false, "")
	})

	log.Info("written to file")
	Close()

	data, err := os.ReadFile(filepath.Join(dir, "autotab.log"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "written to file")
}

func TestConfigureRejectsUnknownLevel(t *testing.T) {
	require.Error(t, Configure("loud", false, ""))
}
