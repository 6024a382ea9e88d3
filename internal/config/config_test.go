package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

const validConfig = `
instance:
  id: venuelink-01
venue:
  testnet: true
  api_key: ${VENUE_API_KEY}
  active_only: true
  update_instruments_interval_mins: 60
  heartbeat:
    interval_secs: 25
reconnect:
  delay_initial_ms: 500
  backoff_factor: 2.0
rate_limit:
  default:
    rate: 2
    burst: 2
  keyed:
    orders:
      rate: 10
      burst: 5
post:
  alo_tick_ms: 100
  normal_tick_ms: 50
metrics:
  port: 9100
`

func TestLoadAndValidate(t *testing.T) {
	t.Setenv("VENUE_API_KEY", "key-from-env")
	path := writeConfig(t, validConfig)

	cfg, err := LoadAndValidate(path)
	if err != nil {
		t.Fatalf("LoadAndValidate failed: %v", err)
	}

	if cfg.Instance.ID != "venuelink-01" {
		t.Errorf("instance id = %q", cfg.Instance.ID)
	}
	if cfg.Venue.APIKey != "key-from-env" {
		t.Errorf("env expansion failed: api_key = %q", cfg.Venue.APIKey)
	}
	if cfg.Venue.RestURL != DefaultTestnetRestURL {
		t.Errorf("rest url = %q, want testnet default", cfg.Venue.RestURL)
	}
	if hb := cfg.Venue.Heartbeat.ToConnection(); hb == nil || hb.Interval != 25*time.Second {
		t.Errorf("venue heartbeat = %+v, want 25s interval", hb)
	}
	if cfg.Reconnect.DelayInitialMs != 500 {
		t.Errorf("delay_initial_ms = %d, want 500", cfg.Reconnect.DelayInitialMs)
	}
	if cfg.Reconnect.TimeoutMs != DefaultReconnectTimeoutMs {
		t.Errorf("timeout_ms = %d, want default", cfg.Reconnect.TimeoutMs)
	}
	if cfg.RateLimit.Keyed["orders"].Rate != 10 {
		t.Errorf("keyed quota = %+v", cfg.RateLimit.Keyed["orders"])
	}
	if cfg.Post.InflightMax != DefaultInflightMax {
		t.Errorf("inflight_max = %d, want default", cfg.Post.InflightMax)
	}
	if cfg.Metrics.Port != 9100 {
		t.Errorf("metrics port = %d, want 9100", cfg.Metrics.Port)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/config.yaml"); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestValidate_RequiresInstanceID(t *testing.T) {
	path := writeConfig(t, `venue: {testnet: true}`)
	if _, err := LoadAndValidate(path); err == nil {
		t.Error("expected error for missing instance id")
	}
}

func TestValidate_RejectsBadQuota(t *testing.T) {
	path := writeConfig(t, `
instance:
  id: x
rate_limit:
  keyed:
    orders:
      rate: 0
      burst: 1
`)
	if _, err := LoadAndValidate(path); err == nil {
		t.Error("expected error for zero-rate quota")
	}
}

func TestValidate_SocketSuffixRequired(t *testing.T) {
	path := writeConfig(t, `
instance:
  id: x
socket:
  url: localhost:9000
`)
	if _, err := LoadAndValidate(path); err == nil {
		t.Error("expected error for socket url without suffix")
	}
}

func TestConversions(t *testing.T) {
	rc := ReconnectConfig{
		TimeoutMs:      5000,
		DelayInitialMs: 500,
		DelayMaxMs:     5000,
		BackoffFactor:  2.0,
		JitterMs:       50,
		MaxTries:       10,
	}
	conn := rc.ToConnection()
	if conn.Timeout != 5*time.Second || conn.DelayInitial != 500*time.Millisecond {
		t.Errorf("ToConnection = %+v", conn)
	}

	hb := HeartbeatConfig{IntervalSecs: 15, Payload: "ping"}
	chb := hb.ToConnection()
	if chb == nil || chb.Interval != 15*time.Second || string(chb.Payload) != "ping" {
		t.Errorf("heartbeat conversion = %+v", chb)
	}
	if (HeartbeatConfig{}).ToConnection() != nil {
		t.Error("zero heartbeat should convert to nil")
	}

	pc := PostConfig{AloTickMs: 100, NormalTickMs: 50, AloBuffer: 1024, NormalBuffer: 4096}
	bc := pc.ToBatcher()
	if bc.AloTick != 100*time.Millisecond || bc.NormalBuffer != 4096 {
		t.Errorf("ToBatcher = %+v", bc)
	}
}
