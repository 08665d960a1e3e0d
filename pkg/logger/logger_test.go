package logger

import (
	"bufio"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func readLines(t *testing.T, path string) []map[string]interface{} {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()
	var out []map[string]interface{}
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var m map[string]interface{}
		if err := json.Unmarshal(sc.Bytes(), &m); err != nil {
			t.Fatalf("line %q is not json: %v", sc.Text(), err)
		}
		out = append(out, m)
	}
	return out
}

func TestNewWritesLevelFilteredJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	l, err := New(&Config{Level: "INFO", Format: "json", Output: path})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	l.Debug("hidden")
	l.With(String("component", "robustness")).Info("run done",
		Seed(12345), Duration("took", 1500*time.Millisecond), Float64("bucket_size", 20))
	l.Error("save run", Error(errors.New("boom")), Error(nil))

	lines := readLines(t, path)
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	run := lines[0]
	if run["message"] != "run done" || run["component"] != "robustness" || run["seed"] != float64(12345) || run["took"] != float64(1500) {
		t.Fatalf("unexpected info line %v", run)
	}
	if c, _ := run["caller"].(string); !strings.Contains(c, "logger_test.go") {
		t.Fatalf("caller should point at the test, got %q", c)
	}
	if lines[1]["error"] != "boom" || lines[1]["level"] != "error" {
		t.Fatalf("unexpected error line %v", lines[1])
	}
}

func TestNewRejectsBadConfig(t *testing.T) {
	if _, err := New(&Config{Level: "loud"}); err == nil {
		t.Fatalf("expected invalid level error")
	}
	if _, err := New(&Config{Level: "info", Format: "xml"}); err == nil {
		t.Fatalf("expected invalid format error")
	}
}

func TestCallerIsModuleRelative(t *testing.T) {
	c := caller(0)
	if !strings.HasPrefix(c, "pkg/logger/logger_test.go:") && !strings.HasPrefix(c, "logger_test.go:") {
		t.Fatalf("unexpected caller %q", c)
	}
}
