package config

import (
	"strings"
	"testing"
	"time"
)

func validConfig() Config {
	return Config{
		App:     AppConfig{Env: "local", Port: 8000},
		LiveKit: LiveKitConfig{URL: "wss://example.livekit.cloud", APIKey: "key", APISecret: "secret"},
		Trunk:   TrunkConfig{OutboundTrunkID: "ST_abc123"},
		Agent: AgentConfig{
			Name:         "unified-caller",
			Variant:      "alexis",
			RingTimeout:  30 * time.Second,
			PollInterval: 100 * time.Millisecond,
			VADThreshold: 0.6,
		},
	}
}

func TestValidate_AcceptsCompleteConfig(t *testing.T) {
	c := validConfig()
	if err := c.Validate(); err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}
}

func TestValidate_RequiresTrunkID(t *testing.T) {
	c := validConfig()
	c.Trunk.OutboundTrunkID = ""
	err := c.Validate()
	if err == nil {
		t.Fatalf("expected error for missing trunk id")
	}
	if !strings.Contains(err.Error(), "SIP_OUTBOUND_TRUNK_ID") {
		t.Fatalf("expected trunk id error, got %v", err)
	}
}

func TestValidate_RejectsTrunkIDWithoutPrefix(t *testing.T) {
	c := validConfig()
	c.Trunk.OutboundTrunkID = "trunk-42"
	if err := c.Validate(); err == nil {
		t.Fatalf("expected error for trunk id without ST_ prefix")
	}
}

func TestValidate_RejectsOutOfRangeVADThreshold(t *testing.T) {
	for _, v := range []float64{0, -0.5, 1, 1.5} {
		c := validConfig()
		c.Agent.VADThreshold = v
		if err := c.Validate(); err == nil {
			t.Fatalf("expected error for threshold %v", v)
		}
	}
}

func TestValidate_ProductionRequiresSSLModeWhenDBConfigured(t *testing.T) {
	c := validConfig()
	c.App.Env = "production"
	c.DB = DBConfig{Host: "localhost", Port: 5432, User: "postgres", Password: "x", Name: "calls"}
	if err := c.Validate(); err == nil {
		t.Fatalf("expected error for production without DB_SSLMODE")
	}
}

func TestValidate_LocalDefaultsSSLMode(t *testing.T) {
	c := validConfig()
	c.DB = DBConfig{Host: "localhost", Port: 5432, User: "postgres", Password: "x", Name: "calls"}
	if err := c.Validate(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if c.DB.SSLMode != "disable" {
		t.Fatalf("expected sslmode disable default, got %q", c.DB.SSLMode)
	}
}

func TestValidate_ReportsAllMissingRequired(t *testing.T) {
	c := Config{App: AppConfig{Env: "local", Port: 8000}, Agent: validConfig().Agent}
	err := c.Validate()
	if err == nil {
		t.Fatalf("expected validation error")
	}
	for _, want := range []string{"LIVEKIT_URL", "LIVEKIT_API_KEY", "LIVEKIT_API_SECRET", "SIP_OUTBOUND_TRUNK_ID"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("expected %s in error, got %v", want, err)
		}
	}
}
