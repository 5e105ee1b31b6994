package templates

import (
	"testing"

	"github.com/nextlevelbuilder/vcwarden/internal/config"
	"github.com/nextlevelbuilder/vcwarden/pkg/protocol"
)

func TestRender(t *testing.T) {
	tests := []struct {
		name string
		tpl  string
		vars Vars
		want string
	}{
		{"no placeholders", "/voice claim", Vars{UserID: "1"}, "/voice claim"},
		{"single", "/voice kick {target}", Vars{Target: "<@42>"}, "/voice kick <@42>"},
		{"repeated", "{user_id}:{user_id}", Vars{UserID: "7"}, "7:7"},
		{"unknown left alone", "/voice {mystery} {limit}", Vars{Limit: "5"}, "/voice {mystery} 5"},
		{"missing value left alone", "/voice name {new_name}", Vars{}, "/voice name {new_name}"},
		{"empty value", "/ban {target} {reason}", Vars{Target: "1", Reason: ""}, "/ban 1 "},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Render(tt.tpl, tt.vars); got != tt.want {
				t.Errorf("Render(%q) = %q, want %q", tt.tpl, got, tt.want)
			}
		})
	}
}

func TestRenderer_Command(t *testing.T) {
	cfg := config.Default()
	cfg.Update(func(s *config.Settings) {
		s.Templates.Limit = " /voice limit {limit} "
	})
	r := NewRenderer(cfg)

	got, ok := r.Command(protocol.TemplateLimit, Vars{Limit: "3"})
	if !ok || got != "/voice limit 3" {
		t.Fatalf("Command(limit) = %q, %v", got, ok)
	}
	if _, ok := r.Command(protocol.TemplateKick, nil); ok {
		t.Error("empty template should report ok=false")
	}

	// Settings are read fresh on each call.
	cfg.Update(func(s *config.Settings) { s.Templates.Kick = "/voice kick {target}" })
	if got, ok := r.Command(protocol.TemplateKick, Vars{Target: "9"}); !ok || got != "/voice kick 9" {
		t.Errorf("after update: %q, %v", got, ok)
	}
}
