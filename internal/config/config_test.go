package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	s := cfg.Current()
	if s.Queue.DelayMs != 1500 {
		t.Errorf("DelayMs = %d, want 1500", s.Queue.DelayMs)
	}
	if !s.Queue.IsEnabled() {
		t.Error("queue should be enabled by default")
	}
	if s.Store.FlushDelay().Milliseconds() != 1000 {
		t.Errorf("FlushDelay = %v, want 1s", s.Store.FlushDelay())
	}
}

func TestLoad_JSON5AndEnvOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	body := `{
		// comments and trailing commas are fine
		discord: {token: "file-token", moderation_bot_id: "111", managed_category_id: "222"},
		queue: {enabled: false, delay_ms: 200},
		router: {prefix: "!vc", remote_operators: ["333", "444"]},
		templates: {claim: "/voice claim", kick: "/voice kick {target}",},
	}`
	if err := os.WriteFile(path, []byte(body), 0600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("VCWARDEN_DISCORD_TOKEN", "env-token")
	t.Setenv("VCWARDEN_DEBUG", "true")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	s := cfg.Current()
	if s.Discord.Token != "env-token" {
		t.Errorf("token = %q, env should win", s.Discord.Token)
	}
	if s.Discord.ModerationBotID != "111" {
		t.Errorf("ModerationBotID = %q", s.Discord.ModerationBotID)
	}
	if s.Queue.IsEnabled() {
		t.Error("queue.enabled=false not honored")
	}
	if s.Queue.Delay().Milliseconds() != 200 {
		t.Errorf("Delay = %v", s.Queue.Delay())
	}
	if !s.Router.RemoteOperators.Contains("333") || !s.Router.RemoteOperators.Contains("444") {
		t.Errorf("RemoteOperators = %v", s.Router.RemoteOperators)
	}
	if got := s.Templates.Get("kick"); got != "/voice kick {target}" {
		t.Errorf("kick template = %q", got)
	}
	if got := s.Templates.Get("nonexistent"); got != "" {
		t.Errorf("unknown template = %q, want empty", got)
	}
	if !s.Debug {
		t.Error("VCWARDEN_DEBUG not applied")
	}
}

func TestLoad_ParseError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte("{not json"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(s *Settings)
		wantErr string
	}{
		{"defaults", func(s *Settings) {}, ""},
		{"bad cron", func(s *Settings) { s.Rotation.Schedule = "every tuesday" }, "rotation.schedule"},
		{"good cron", func(s *Settings) { s.Rotation.Schedule = "*/15 * * * *" }, ""},
		{"threshold zero", func(s *Settings) { s.Policies.VoteBanThreshold = 0 }, "vote_ban_threshold"},
		{"threshold above one", func(s *Settings) { s.Policies.VoteBanThreshold = 1.5 }, "vote_ban_threshold"},
		{"postgres without dsn", func(s *Settings) { s.Store.Driver = "postgres" }, "VCWARDEN_POSTGRES_DSN"},
		{"unknown driver", func(s *Settings) { s.Store.Driver = "mongo" }, "unknown driver"},
		{"negative delay", func(s *Settings) { s.Queue.DelayMs = -1 }, "delay_ms"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.Update(tt.mutate)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestSave_StripsSecrets(t *testing.T) {
	cfg := Default()
	cfg.Update(func(s *Settings) {
		s.Discord.Token = "secret"
		s.Discord.ModerationBotID = "111"
	})
	path := filepath.Join(t.TempDir(), "sub", "config.json")
	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(data), "secret") {
		t.Errorf("token persisted: %s", data)
	}
	var round map[string]any
	if err := json.Unmarshal(data, &round); err != nil {
		t.Fatalf("saved file is not JSON: %v", err)
	}
	// The live config keeps its token.
	if cfg.Current().Discord.Token != "secret" {
		t.Error("Save mutated the live config")
	}
}

func TestMaskedCopy(t *testing.T) {
	cfg := Default()
	cfg.Update(func(s *Settings) { s.Discord.Token = "abc" })
	if got := cfg.MaskedCopy().Discord.Token; got != secretMask {
		t.Errorf("masked token = %q", got)
	}
}

func TestReplaceFrom(t *testing.T) {
	a := Default()
	b := Default()
	b.Update(func(s *Settings) { s.Router.Prefix = "!x" })
	before := a.Hash()
	a.ReplaceFrom(b)
	if a.Current().Router.Prefix != "!x" {
		t.Errorf("prefix = %q", a.Current().Router.Prefix)
	}
	if a.Hash() == before {
		t.Error("hash did not change")
	}
}

func TestFlexibleStringSlice_Numbers(t *testing.T) {
	var f FlexibleStringSlice
	if err := json.Unmarshal([]byte(`[123456789012345678, "42"]`), &f); err != nil {
		t.Fatal(err)
	}
	if len(f) != 2 || f[1] != "42" {
		t.Fatalf("got %v", f)
	}
	if !f.Contains("42") || f.Contains("7") {
		t.Errorf("Contains mismatch: %v", f)
	}
}

func TestReservedCommands_FollowTemplates(t *testing.T) {
	cfg := Default()
	cfg.Update(func(s *Settings) {
		s.Templates.Claim = "!vc claim"
		s.Templates.Info = "!vc info {channel_id}"
	})
	got := cfg.ReservedCommands()
	if len(got) != 2 || got[0] != "!vc claim" || got[1] != "!vc info {channel_id}" {
		t.Errorf("ReservedCommands = %q", got)
	}
}
