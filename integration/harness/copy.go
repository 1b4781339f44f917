package harness

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
)

// outputDirs are created by autotab itself; a fixture that carries them from an
// earlier manual run would leak stale logs and audit rows into a test.
var outputDirs = map[string]bool{
	"artifacts": true,
	"reports":   true,
	"logs":      true,
	"audit":     true,
}

// CopyDir copies the fixture tree at src into dst, skipping top-level workspace
// output directories.
func CopyDir(t *testing.T, src, dst string) {
	t.Helper()
	if err := copyFixture(src, dst); err != nil {
		t.Fatalf("copy fixture %s to %s: %v", src, dst, err)
	}
}

func copyFixture(src, dst string) error {
	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		if d.IsDir() && filepath.Dir(rel) == "." && outputDirs[rel] {
			return filepath.SkipDir
		}
		if d.Type()&fs.ModeSymlink != 0 {
			return fmt.Errorf("symlink in fixture: %s", rel)
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if d.IsDir() {
			return os.MkdirAll(target, info.Mode().Perm()|0o700)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		return os.WriteFile(target, data, info.Mode().Perm())
	})
}
