package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadAppliesDefaultsUnderYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yml := "environment: test\nengine:\n  workers: 8\nserver:\n  port: 9999\n"
	if err := os.WriteFile(path, []byte(yml), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	c, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.Environment != "test" || c.Server.Port != 9999 || c.Engine.Workers != 8 {
		t.Fatalf("yaml values not applied: %+v", c)
	}
	if c.Engine.VolatilityWindow != 30 || c.Engine.HistogramBins != 25 || c.CacheTTL.Jobs != 24*time.Hour {
		t.Fatalf("defaults not applied: window=%d bins=%d jobs=%v", c.Engine.VolatilityWindow, c.Engine.HistogramBins, c.CacheTTL.Jobs)
	}
}

func TestValidateRejectsKafkaWithoutBrokers(t *testing.T) {
	c := Default()
	c.Kafka.Enabled = true
	if err := c.Validate(); err == nil {
		t.Fatalf("expected error for kafka without brokers")
	}
	c.Kafka.Brokers = []string{"localhost:9092"}
	if err := c.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateBucketSizeRange(t *testing.T) {
	c := Default()
	c.Engine.DefaultBucketSize = 150
	if err := c.Validate(); err == nil {
		t.Fatalf("expected error for bucket size above 100")
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"KAFKA_ENABLED": "true",
		"KAFKA_BROKERS": "a:9092,b:9092",
		"PORT":          "7000",
		"REDIS_ENABLED": "yes-please",
	}
	c := Default()
	err := c.applyEnv(func(k string) (string, bool) { v, ok := env[k]; return v, ok })
	if err == nil {
		t.Fatalf("expected error for unparsable REDIS_ENABLED")
	}
	if !c.Kafka.Enabled || len(c.Kafka.Brokers) != 2 || c.Server.Port != 7000 {
		t.Fatalf("env overrides not applied: kafka=%v brokers=%v port=%d", c.Kafka.Enabled, c.Kafka.Brokers, c.Server.Port)
	}
}
