package cmd

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/vcwarden/internal/config"
	"github.com/nextlevelbuilder/vcwarden/internal/store/pg"
	"github.com/nextlevelbuilder/vcwarden/internal/store/sqlite"
	"github.com/nextlevelbuilder/vcwarden/internal/upgrade"
	"github.com/nextlevelbuilder/vcwarden/pkg/protocol"
)

func doctorCmd() *cobra.Command {
	var showConfig bool
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check configuration and store health",
		Run: func(cmd *cobra.Command, args []string) {
			runDoctor(showConfig)
		},
	}
	cmd.Flags().BoolVar(&showConfig, "show-config", false, "print the effective config with secrets masked")
	return cmd
}

func runDoctor(showConfig bool) {
	fmt.Println("vcwarden doctor")
	fmt.Printf("  Version:  %s (protocol %d)\n", Version, protocol.ProtocolVersion)
	fmt.Printf("  OS:       %s/%s\n", runtime.GOOS, runtime.GOARCH)
	fmt.Printf("  Go:       %s\n", runtime.Version())
	fmt.Println()

	cfgPath := resolveConfigPath()
	fmt.Printf("  Config:   %s", cfgPath)
	if _, err := os.Stat(cfgPath); err != nil {
		fmt.Println(" (NOT FOUND, using defaults + env)")
	} else {
		fmt.Println(" (OK)")
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Printf("  Config load error: %s\n", err)
		return
	}
	if err := cfg.Validate(); err != nil {
		fmt.Printf("  Config invalid:\n    %s\n", err)
	} else {
		fmt.Println("  Config valid")
	}
	s := cfg.Current()

	fmt.Println()
	fmt.Println("  Discord:")
	checkSet("Token:", s.Discord.Token != "", "set VCWARDEN_DISCORD_TOKEN")
	fmt.Printf("    %-20s %s\n", "Account:", s.Discord.TokenType)
	checkSet("Guild:", s.Discord.GuildID != "", s.Discord.GuildID)
	checkSet("Moderation bot:", s.Discord.ModerationBotID != "", s.Discord.ModerationBotID)
	checkSet("Managed category:", s.Discord.ManagedCategoryID != "", s.Discord.ManagedCategoryID)

	fmt.Println()
	fmt.Println("  Templates:")
	for _, key := range []string{
		protocol.TemplateClaim, protocol.TemplateInfo, protocol.TemplateLock, protocol.TemplateUnlock,
		protocol.TemplateLimit, protocol.TemplateRename, protocol.TemplateKick, protocol.TemplateBan,
		protocol.TemplateUnban, protocol.TemplatePermit, protocol.TemplateUnpermit,
	} {
		tpl := s.Templates.Get(key)
		if tpl == "" {
			tpl = "(not configured, actions skipped)"
		}
		fmt.Printf("    %-20s %s\n", key+":", tpl)
	}

	fmt.Println()
	fmt.Println("  Store:")
	checkStore(cfg)

	if showConfig {
		fmt.Println()
		data, _ := json.MarshalIndent(cfg.MaskedCopy(), "  ", "  ")
		fmt.Printf("  Effective config:\n  %s\n", data)
	}

	fmt.Println()
	fmt.Println("Doctor check complete.")
}

func checkSet(label string, ok bool, detail string) {
	if ok {
		fmt.Printf("    %-20s %s\n", label, detail)
		return
	}
	fmt.Printf("    %-20s MISSING\n", label)
}

func checkStore(cfg *config.Config) {
	s := cfg.Current().Store
	var (
		db  *sql.DB
		err error
	)
	if s.Driver == driverPostgres {
		fmt.Printf("    %-12s postgres\n", "Driver:")
		if s.PostgresDSN == "" {
			fmt.Printf("    %-12s VCWARDEN_POSTGRES_DSN not set\n", "Status:")
			return
		}
		db, err = pg.OpenDB(s.PostgresDSN)
	} else {
		path := cfg.StorePath()
		fmt.Printf("    %-12s sqlite (%s)\n", "Driver:", path)
		if _, statErr := os.Stat(path); statErr != nil {
			fmt.Printf("    %-12s not created yet (first run will migrate)\n", "Status:")
			return
		}
		db, err = sqlite.OpenDB(path)
	}
	if err != nil {
		fmt.Printf("    %-12s CONNECT FAILED (%s)\n", "Status:", err)
		return
	}
	defer db.Close()

	st, err := upgrade.Check(context.Background(), db)
	if err != nil {
		fmt.Printf("    %-12s CHECK FAILED (%s)\n", "Schema:", err)
		return
	}
	if err := st.Err(); err != nil {
		fmt.Printf("    %-12s v%d (%s)\n", "Schema:", st.Version, err)
		return
	}
	fmt.Printf("    %-12s v%d (up to date)\n", "Schema:", st.Version)
}
