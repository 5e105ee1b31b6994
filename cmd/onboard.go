package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/vcwarden/internal/config"
)

func onboardCmd() *cobra.Command {
	var nonInteractive bool
	cmd := &cobra.Command{
		Use:   "onboard",
		Short: "Interactive setup wizard",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			if nonInteractive {
				return runAutoOnboard(cfgPath)
			}
			return runOnboard(cfgPath)
		},
	}
	cmd.Flags().BoolVar(&nonInteractive, "non-interactive", false, "build the config from VCWARDEN_* env vars only")
	return cmd
}

// defaultTemplates returns the moderation bot command set for a bot whose
// text commands start with botPrefix.
func defaultTemplates(botPrefix string) config.TemplatesConfig {
	p := strings.TrimSpace(botPrefix)
	return config.TemplatesConfig{
		Claim:    p + " claim",
		Info:     p + " info",
		Lock:     p + " lock",
		Unlock:   p + " unlock",
		Limit:    p + " limit {limit}",
		Rename:   p + " name {new_name}",
		Kick:     p + " kick {target}",
		Ban:      p + " ban {target}",
		Unban:    p + " unban {target}",
		Permit:   p + " permit {target}",
		Unpermit: p + " unpermit {target}",
	}
}

func requireID(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		return errors.New("required")
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return errors.New("expected a numeric Discord ID")
		}
	}
	return nil
}

func optionalID(s string) error {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return requireID(s)
}

func runOnboard(cfgPath string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load existing config: %w", err)
	}
	s := cfg.Current()

	token := s.Discord.Token
	tokenType := s.Discord.TokenType
	if tokenType == "" {
		tokenType = "bot"
	}
	botPrefix := "/voice"
	if strings.HasSuffix(s.Templates.Claim, " claim") {
		botPrefix = strings.TrimSuffix(s.Templates.Claim, " claim")
	}
	prefix := s.Router.Prefix
	if prefix == "" {
		prefix = "!vc"
	}
	names := strings.Join(s.Rotation.Names, ", ")
	driver := s.Store.Driver
	if driver == "" {
		driver = "sqlite"
	}
	enableHTTP := s.HTTP.Listen != ""

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Account type").
				Options(
					huh.NewOption("Bot account", "bot"),
					huh.NewOption("User account", "user"),
				).
				Value(&tokenType),
			huh.NewInput().
				Title("Discord token").
				Description("Written to .env next to the config, never to config.json.").
				EchoMode(huh.EchoModePassword).
				Value(&token).
				Validate(func(v string) error {
					if strings.TrimSpace(v) == "" {
						return errors.New("required")
					}
					return nil
				}),
		),
		huh.NewGroup(
			huh.NewInput().Title("Guild ID").Value(&s.Discord.GuildID).Validate(requireID),
			huh.NewInput().Title("Moderation bot user ID").Value(&s.Discord.ModerationBotID).Validate(requireID),
			huh.NewInput().Title("Managed voice category ID").Value(&s.Discord.ManagedCategoryID).Validate(requireID),
			huh.NewInput().
				Title("Join-to-create channel ID").
				Description("Optional. Nothing is ever sent there.").
				Value(&s.Discord.CreationChannelID).
				Validate(optionalID),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Moderation bot command prefix").
				Description("Templates are generated as \"<prefix> claim\", \"<prefix> name {new_name}\", ...").
				Value(&botPrefix),
			huh.NewInput().Title("Remote command prefix").Value(&prefix),
			huh.NewInput().
				Title("Rotation names").
				Description("Comma separated. Leave empty to disable name rotation.").
				Value(&names),
			huh.NewConfirm().Title("Auto-claim channels the owner leaves?").Value(&s.Policies.AutoClaim),
		),
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("State store").
				Options(
					huh.NewOption("SQLite file", "sqlite"),
					huh.NewOption("PostgreSQL (VCWARDEN_POSTGRES_DSN)", driverPostgres),
				).
				Value(&driver),
			huh.NewConfirm().Title("Serve the local status API on 127.0.0.1:18791?").Value(&enableHTTP),
		),
	)
	if err := form.Run(); err != nil {
		return fmt.Errorf("onboard: %w", err)
	}

	s.Discord.TokenType = tokenType
	s.Templates = defaultTemplates(botPrefix)
	s.Router.Prefix = strings.TrimSpace(prefix)
	s.Rotation.Names = splitNames(names)
	s.Store.Driver = driver
	if enableHTTP && s.HTTP.Listen == "" {
		s.HTTP.Listen = "127.0.0.1:18791"
	} else if !enableHTTP {
		s.HTTP.Listen = ""
	}

	out := config.Default()
	out.Update(func(dst *config.Settings) { *dst = s })
	if err := out.Validate(); err != nil && driver != driverPostgres {
		return fmt.Errorf("generated config is invalid: %w", err)
	}
	if err := config.Save(cfgPath, out); err != nil {
		return fmt.Errorf("save config: %w", err)
	}

	envPath := filepath.Join(filepath.Dir(cfgPath), ".env")
	envData := fmt.Sprintf("VCWARDEN_DISCORD_TOKEN=%s\n", strings.TrimSpace(token))
	if err := os.WriteFile(envPath, []byte(envData), 0600); err != nil {
		return fmt.Errorf("write %s: %w", envPath, err)
	}

	fmt.Printf("\nConfig saved to %s\n", cfgPath)
	fmt.Printf("Token saved to %s\n\n", envPath)
	fmt.Println("Next steps:")
	fmt.Printf("  set -a; . %s; set +a\n", envPath)
	if driver == driverPostgres {
		fmt.Println("  export VCWARDEN_POSTGRES_DSN=postgres://...")
	}
	fmt.Println("  vcwarden doctor")
	fmt.Println("  vcwarden")
	return nil
}

// runAutoOnboard writes a config built from defaults plus env vars, for
// container deployments without a terminal.
func runAutoOnboard(cfgPath string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load existing config: %w", err)
	}
	if cfg.Current().Templates.Claim == "" {
		cfg.Update(func(s *config.Settings) { s.Templates = defaultTemplates("/voice") })
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config from environment is invalid: %w", err)
	}
	if err := config.Save(cfgPath, cfg); err != nil {
		return fmt.Errorf("save config: %w", err)
	}
	fmt.Printf("Config saved to %s\n", cfgPath)
	return nil
}

func splitNames(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
