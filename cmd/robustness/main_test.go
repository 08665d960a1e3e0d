package main

import (
	"bytes"
	"context"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"RegimeLab/internal/domain/models"
)

func writeCandles(t *testing.T, n int) string {
	t.Helper()
	start := time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]models.Candle, n)
	for i := range out {
		x := float64(i)
		c := 100 * (1 + 0.001*x) * (1 + 0.03*math.Sin(x/4))
		out[i] = models.Candle{Date: start.AddDate(0, 0, i).Format(time.RFC3339), Open: c, High: c * 1.01, Low: c * 0.99, Close: c}
	}
	b, err := json.Marshal(out)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	path := filepath.Join(t.TempDir(), "candles.json")
	if err := os.WriteFile(path, b, 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	return path
}

func TestRunWritesReport(t *testing.T) {
	path := writeCandles(t, 150)
	var out bytes.Buffer
	args := []string{"-candles", path, "-shuffles", "4", "-montecarlo", "-sims", "20", "-log-level", "error"}
	if err := run(context.Background(), args, nil, &out); err != nil {
		t.Fatalf("run: %v", err)
	}
	var rep models.RobustnessReport
	if err := json.Unmarshal(out.Bytes(), &rep); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if len(rep.Runs) != 4 || rep.MonteCarlo == nil {
		t.Fatalf("expected 4 runs with monte carlo, got %d runs mc=%v", len(rep.Runs), rep.MonteCarlo != nil)
	}
}

func TestRunReadsStdin(t *testing.T) {
	b, err := os.ReadFile(writeCandles(t, 100))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var first, second bytes.Buffer
	args := []string{"-shuffles", "2", "-seed", "7", "-log-level", "error"}
	if err := run(context.Background(), args, bytes.NewReader(b), &first); err != nil {
		t.Fatalf("run: %v", err)
	}
	if err := run(context.Background(), args, bytes.NewReader(b), &second); err != nil {
		t.Fatalf("run: %v", err)
	}
	if first.String() != second.String() {
		t.Fatalf("same seed produced different reports")
	}
}

func TestRunKeepsZeroSeedAndDefaultsToBothSides(t *testing.T) {
	path := writeCandles(t, 100)
	var out bytes.Buffer
	if err := run(context.Background(), []string{"-candles", path, "-shuffles", "2", "-seed", "0", "-log-level", "error"}, nil, &out); err != nil {
		t.Fatalf("run: %v", err)
	}
	var rep models.RobustnessReport
	if err := json.Unmarshal(out.Bytes(), &rep); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if rep.BaseSeed != 0 || rep.Runs[0].Seed != 0 {
		t.Fatalf("seed 0 must be kept, got base %d first run %d", rep.BaseSeed, rep.Runs[0].Seed)
	}
	if rep.Position != models.Both {
		t.Fatalf("expected default position both, got %q", rep.Position)
	}
}

func TestRunRejectsBadInput(t *testing.T) {
	path := writeCandles(t, 100)
	cases := []struct {
		name string
		args []string
		want string
	}{
		{"too many shuffles", []string{"-candles", path, "-shuffles", "500"}, "numShuffles"},
		{"zero bucket", []string{"-candles", path, "-bucket", "0"}, "bucketSize"},
		{"zero simulations", []string{"-candles", path, "-montecarlo", "-sims", "0"}, "numSimulations"},
		{"unknown indicator", []string{"-candles", path, "-indicator", "macd"}, "indicatorType"},
		{"missing file", []string{"-candles", filepath.Join(t.TempDir(), "nope.json")}, "no such file"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := run(context.Background(), append(tc.args, "-log-level", "error"), nil, &bytes.Buffer{})
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error containing %q, got %v", tc.want, err)
			}
		})
	}
}
