package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	t.Setenv("NDBPOOL_CONNECTION_STRING", "")
	t.Setenv("NDBPOOL_NODE_ID", "")
	t.Setenv("NDBPOOL_HEALTH_ADDR", "")
	t.Setenv("NDBPOOL_EVENTLOG_DRIVER", "")
	t.Setenv("NDBPOOL_EVENTLOG_DSN", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.ConnectionString != "localhost:1186" {
		t.Errorf("expected default connection string, got %q", cfg.ConnectionString)
	}
	if cfg.HealthAddr != ":8080" {
		t.Errorf("expected default health addr, got %q", cfg.HealthAddr)
	}
	if cfg.EventLogDriver != "filesystem" {
		t.Errorf("expected default event log driver, got %q", cfg.EventLogDriver)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("NDBPOOL_CONNECTION_STRING", "cluster-mgmt:1186")
	t.Setenv("NDBPOOL_NODE_ID", "42")
	t.Setenv("NDBPOOL_EVENTLOG_DRIVER", "postgres")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.ConnectionString != "cluster-mgmt:1186" {
		t.Errorf("expected overridden connection string, got %q", cfg.ConnectionString)
	}
	if cfg.NodeID != 42 {
		t.Errorf("expected node id 42, got %d", cfg.NodeID)
	}
	if cfg.EventLogDriver != "postgres" {
		t.Errorf("expected overridden event log driver, got %q", cfg.EventLogDriver)
	}
}
