package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/mattn/go-runewidth"
	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/vcwarden/internal/config"
	"github.com/nextlevelbuilder/vcwarden/internal/ownership"
	"github.com/nextlevelbuilder/vcwarden/internal/queue"
)

const maxCellWidth = 40

func stateCmd() *cobra.Command {
	var live bool
	cmd := &cobra.Command{
		Use:   "state",
		Short: "Show persisted member configs, or live ownership and queue state",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(resolveConfigPath())
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if live {
				return printLiveState(cmd.Context(), cfg, os.Stdout)
			}
			return printStoredState(cmd.Context(), cfg, os.Stdout)
		},
	}
	cmd.Flags().BoolVar(&live, "live", false, "query the running service's HTTP API instead of the store")
	return cmd
}

func printStoredState(ctx context.Context, cfg *config.Config, w io.Writer) error {
	stores, err := openStores(cfg)
	if err != nil {
		return err
	}
	defer stores.Close()

	members := ownership.NewMemberConfigs(nil)
	if _, err := members.Load(ctx, stores.KV); err != nil {
		return err
	}
	printMembers(w, members.All())
	return nil
}

// liveState mirrors the subset of GET /state the command prints.
type liveState struct {
	LocalUserID    string                       `json:"local_user_id"`
	VoiceChannelID string                       `json:"voice_channel_id"`
	Modules        []string                     `json:"modules"`
	Ownership      []ownership.ChannelOwnership `json:"ownership"`
	Members        []ownership.MemberConfig     `json:"members"`
	Queue          struct {
		Priority int              `json:"priority"`
		Normal   int              `json:"normal"`
		Pending  []queue.Snapshot `json:"pending"`
	} `json:"queue"`
}

func printLiveState(ctx context.Context, cfg *config.Config, w io.Writer) error {
	h := cfg.Current().HTTP
	if h.Listen == "" {
		return fmt.Errorf("http.listen is not configured; the live state API is disabled")
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://"+h.Listen+"/state", nil)
	if err != nil {
		return err
	}
	if h.Token != "" {
		req.Header.Set("Authorization", "Bearer "+h.Token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("query state: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("query state: %s", resp.Status)
	}

	var st liveState
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		return fmt.Errorf("decode state: %w", err)
	}

	fmt.Fprintf(w, "Local user: %s", st.LocalUserID)
	if st.VoiceChannelID != "" {
		fmt.Fprintf(w, " (in %s)", st.VoiceChannelID)
	}
	fmt.Fprintf(w, "\nModules: %s\n\n", strings.Join(st.Modules, ", "))

	rows := make([][]string, 0, len(st.Ownership))
	for _, o := range st.Ownership {
		rows = append(rows, []string{o.ChannelID, o.Owner(), o.CreatorID, o.ClaimantID, formatTime(o.ClaimedAt, o.CreatedAt)})
	}
	printTable(w, []string{"CHANNEL", "OWNER", "CREATOR", "CLAIMANT", "SINCE"}, rows)
	fmt.Fprintln(w)

	printMembers(w, st.Members)
	fmt.Fprintln(w)

	fmt.Fprintf(w, "Queue: %d priority, %d normal\n", st.Queue.Priority, st.Queue.Normal)
	rows = rows[:0]
	for _, it := range st.Queue.Pending {
		lane := "normal"
		if it.Priority {
			lane = "priority"
		}
		rows = append(rows, []string{it.ID, lane, it.ChannelID, it.Command})
	}
	if len(rows) > 0 {
		printTable(w, []string{"ID", "LANE", "CHANNEL", "COMMAND"}, rows)
	}
	return nil
}

func printMembers(w io.Writer, members []ownership.MemberConfig) {
	sort.Slice(members, func(i, j int) bool { return members[i].UserID < members[j].UserID })
	rows := make([][]string, 0, len(members))
	for _, m := range members {
		rows = append(rows, []string{
			m.UserID,
			m.CustomName,
			strconv.FormatBool(m.IsLocked),
			strconv.Itoa(m.UserLimit),
			strings.Join(m.BannedUsers, ","),
			strings.Join(m.PermittedUsers, ","),
		})
	}
	printTable(w, []string{"USER", "NAME", "LOCKED", "LIMIT", "BANNED", "PERMITTED"}, rows)
}

func formatTime(ts ...time.Time) string {
	for _, t := range ts {
		if !t.IsZero() {
			return t.Local().Format(time.DateTime)
		}
	}
	return "-"
}

// printTable writes a left-aligned table, measuring cells by display width
// so wide channel names line up.
func printTable(w io.Writer, header []string, rows [][]string) {
	if len(rows) == 0 {
		fmt.Fprintf(w, "(no %s rows)\n", strings.ToLower(header[0]))
		return
	}
	widths := make([]int, len(header))
	for i, h := range header {
		widths[i] = runewidth.StringWidth(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			row[i] = runewidth.Truncate(cell, maxCellWidth, "…")
			if cw := runewidth.StringWidth(row[i]); cw > widths[i] {
				widths[i] = cw
			}
		}
	}
	line := func(cells []string) {
		var b strings.Builder
		for i, cell := range cells {
			if i == len(cells)-1 {
				b.WriteString(cell)
				break
			}
			b.WriteString(runewidth.FillRight(cell, widths[i]))
			b.WriteString("  ")
		}
		fmt.Fprintln(w, b.String())
	}
	line(header)
	for _, row := range rows {
		line(row)
	}
}
