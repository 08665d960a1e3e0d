package clickhouse

import (
	"testing"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
)

func TestOptionsNative(t *testing.T) {
	cfg := defaultClientConfig()
	for _, opt := range []ClientOption{
		WithAddr("ch", 0),
		WithCredentials("", "pw"),
		WithMaxExecutionTime(30 * time.Second),
		WithAsyncInsert(true, false),
	} {
		opt(cfg)
	}
	o := options(cfg)
	if len(o.Addr) != 1 || o.Addr[0] != "ch:9000" {
		t.Fatalf("unexpected addr %v", o.Addr)
	}
	if o.Auth.Username != "default" || o.Auth.Password != "pw" || o.Auth.Database != "default" {
		t.Fatalf("unexpected auth %+v", o.Auth)
	}
	if o.Protocol != clickhouse.Native || o.Compression.Method != clickhouse.CompressionLZ4 {
		t.Fatalf("expected native lz4, got %v %v", o.Protocol, o.Compression.Method)
	}
	if o.Settings["max_execution_time"] != 30 || o.Settings["async_insert"] != 1 || o.Settings["wait_for_async_insert"] != 0 {
		t.Fatalf("unexpected settings %v", o.Settings)
	}
}

func TestOptionsHTTP(t *testing.T) {
	cfg := defaultClientConfig()
	WithAddr("ch", 8123)(cfg)
	WithHTTP(true)(cfg)
	o := options(cfg)
	if o.Protocol != clickhouse.HTTP || o.Addr[0] != "ch:8123" {
		t.Fatalf("expected http on 8123, got %v %v", o.Protocol, o.Addr)
	}
	if _, ok := o.Settings["async_insert"]; ok {
		t.Fatalf("async insert must be off by default")
	}
}

func TestNewClientRequiresHost(t *testing.T) {
	if _, err := NewClient(); err == nil {
		t.Fatalf("expected host error")
	}
}
