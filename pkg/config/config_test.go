package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestDefaults(t *testing.T) {
	for _, k := range []string{"TASKCHAT_API_URL", "TASKCHAT_WS_URL", "REDIS_ADDR", "KAFKA_BROKERS"} {
		t.Setenv(k, "")
	}
	c, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if c.API.URL != "http://localhost:3000" || c.Realtime.URL != c.API.URL {
		t.Errorf("urls = %q %q", c.API.URL, c.Realtime.URL)
	}
	if c.API.Timeout != 15*time.Second || c.Realtime.Namespace != "chat" {
		t.Errorf("api = %+v realtime = %+v", c.API, c.Realtime)
	}
	if c.Credential.Store != "memory" || c.Kafka.Topic != "chat.messages" {
		t.Errorf("store = %q topic = %q", c.Credential.Store, c.Kafka.Topic)
	}
}

func TestLaterFilesOverride(t *testing.T) {
	t.Setenv("TASKCHAT_API_URL", "")
	t.Setenv("TASKCHAT_WS_URL", "")
	common := writeFile(t, "common.yml", `
api:
  url: http://api.internal/
  timeout: 3s
log:
  level: debug
relay:
  projects: [p-1, p-2]
`)
	client := writeFile(t, "client.yml", `
api:
  url: https://chat.example.com
credential:
  store: redis
`)
	c, err := Load(common + ", " + client)
	if err != nil {
		t.Fatal(err)
	}
	if c.API.URL != "https://chat.example.com" || c.API.Timeout != 3*time.Second {
		t.Errorf("api = %+v", c.API)
	}
	if c.Credential.Store != "redis" || c.Log.Level != "debug" {
		t.Errorf("store = %q level = %q", c.Credential.Store, c.Log.Level)
	}
	if !reflect.DeepEqual(c.Relay.Projects, []string{"p-1", "p-2"}) {
		t.Errorf("projects = %v", c.Relay.Projects)
	}
}

func TestEnvOverridesFiles(t *testing.T) {
	p := writeFile(t, "c.yml", "api:\n  url: http://from-file\nredis:\n  addr: file:6379\n")
	t.Setenv("TASKCHAT_API_URL", "http://from-env")
	t.Setenv("TASKCHAT_WS_URL", "ws://sockets")
	t.Setenv("REDIS_ADDR", "env:6379")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")

	c, err := Load(p)
	if err != nil {
		t.Fatal(err)
	}
	if c.API.URL != "http://from-env" || c.Realtime.URL != "ws://sockets" || c.Redis.Addr != "env:6379" {
		t.Errorf("config = %+v", c)
	}
	if !reflect.DeepEqual(c.Kafka.Brokers, []string{"k1:9092", "k2:9092"}) {
		t.Errorf("brokers = %v", c.Kafka.Brokers)
	}
}

func TestLoadErrors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yml")); err == nil {
		t.Error("missing file accepted")
	}
	bad := writeFile(t, "bad.yml", "api: [unclosed")
	if _, err := Load(bad); err == nil {
		t.Error("invalid yaml accepted")
	}
}

func TestLogger(t *testing.T) {
	t.Setenv("TASKCHAT_API_URL", "")
	c, _ := Load("")
	c.Log.Level = "warn"
	log, err := c.Logger()
	if err != nil {
		t.Fatal(err)
	}
	if log.Core().Enabled(-1) {
		t.Error("debug enabled at warn level")
	}

	c.Log.Level = "loud"
	if _, err := c.Logger(); err == nil {
		t.Error("unknown level accepted")
	}
}
