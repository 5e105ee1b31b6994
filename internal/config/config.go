package config

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// FlexibleStringSlice accepts both ["str"] and [123] in JSON. Discord IDs are
// often pasted as bare numbers.
type FlexibleStringSlice []string

func (f *FlexibleStringSlice) UnmarshalJSON(data []byte) error {
	var ss []string
	if err := json.Unmarshal(data, &ss); err == nil {
		*f = ss
		return nil
	}
	var raw []interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	result := make([]string, 0, len(raw))
	for _, v := range raw {
		switch val := v.(type) {
		case string:
			result = append(result, val)
		case float64:
			result = append(result, fmt.Sprintf("%.0f", val))
		default:
			result = append(result, fmt.Sprintf("%v", val))
		}
	}
	*f = result
	return nil
}

// Contains reports whether id is listed.
func (f FlexibleStringSlice) Contains(id string) bool {
	for _, v := range f {
		if v == id {
			return true
		}
	}
	return false
}

// Settings holds every operator-tunable value. Components never cache these;
// they call Config.Current on each operation so edits apply without restart.
type Settings struct {
	Discord   DiscordConfig   `json:"discord"`
	Queue     QueueConfig     `json:"queue"`
	Router    RouterConfig    `json:"router"`
	Templates TemplatesConfig `json:"templates"`
	Rotation  RotationConfig  `json:"rotation"`
	Policies  PoliciesConfig  `json:"policies"`
	Cleanup   CleanupConfig   `json:"cleanup,omitempty"`
	Store     StoreConfig     `json:"store"`
	HTTP      HTTPConfig      `json:"http,omitempty"`
	Telemetry TelemetryConfig `json:"telemetry,omitempty"`
	Debug     bool            `json:"debug,omitempty"` // surface debug-level local notices
}

// Config is the live settings object shared by all components.
type Config struct {
	Settings
	mu sync.RWMutex
}

// QueueConfig controls the outbound action queue.
type QueueConfig struct {
	Enabled *bool `json:"enabled,omitempty"`  // default true (nil = enabled)
	DelayMs int   `json:"delay_ms,omitempty"` // minimum gap between sends (default 1500)
}

// IsEnabled reports whether the queue should drain.
func (q QueueConfig) IsEnabled() bool {
	return q.Enabled == nil || *q.Enabled
}

// Delay returns the inter-item delay.
func (q QueueConfig) Delay() time.Duration {
	if q.DelayMs < 0 {
		return 0
	}
	return time.Duration(q.DelayMs) * time.Millisecond
}

// RouterConfig controls inbound remote commands.
type RouterConfig struct {
	Prefix          string              `json:"prefix,omitempty"`            // e.g. "!vc"; ignored in DMs
	RemoteOperators FlexibleStringSlice `json:"remote_operators,omitempty"`  // user IDs allowed to run operator commands
	RemoteRateLimit int                 `json:"remote_rate_limit,omitempty"` // commands per sender per minute (default 30, 0 = unlimited)
}

// RotationConfig controls periodic channel renaming.
type RotationConfig struct {
	Names           []string `json:"names,omitempty"`
	IntervalMinutes int      `json:"interval_minutes,omitempty"` // default 10
	Schedule        string   `json:"schedule,omitempty"`         // cron expression; overrides interval when set
}

// Interval returns the rotation period.
func (r RotationConfig) Interval() time.Duration {
	if r.IntervalMinutes <= 0 {
		return 10 * time.Minute
	}
	return time.Duration(r.IntervalMinutes) * time.Minute
}

// PoliciesConfig configures the join policy modules.
type PoliciesConfig struct {
	AutoClaim        bool                `json:"auto_claim,omitempty"`
	Blacklist        FlexibleStringSlice `json:"blacklist,omitempty"`
	Whitelist        FlexibleStringSlice `json:"whitelist,omitempty"`
	RequiredRoleIDs  FlexibleStringSlice `json:"required_role_ids,omitempty"`
	BanLimit         int                 `json:"ban_limit,omitempty"`          // bot-side ban slots (default 10)
	VoteBanThreshold float64             `json:"vote_ban_threshold,omitempty"` // fraction of other occupants (default 0.5)
	VoteTTLMinutes   int                 `json:"vote_ttl_minutes,omitempty"`   // default 5
}

// CleanupConfig configures deletion of sent commands.
type CleanupConfig struct {
	DeleteAfterSeconds int `json:"delete_after_seconds,omitempty"` // 0 = keep
}

// StoreConfig selects the persistence backend.
// PostgresDSN is NEVER read from config.json (secret), only from env VCWARDEN_POSTGRES_DSN.
type StoreConfig struct {
	Driver       string `json:"driver,omitempty"` // "sqlite" (default) or "postgres"
	Path         string `json:"path,omitempty"`   // sqlite file (default ~/.vcwarden/state.db)
	PostgresDSN  string `json:"-"`
	FlushDelayMs int    `json:"flush_delay_ms,omitempty"` // debounce window (default 1000)
}

// FlushDelay returns the debounce window for persisted writes.
func (s StoreConfig) FlushDelay() time.Duration {
	if s.FlushDelayMs <= 0 {
		return time.Second
	}
	return time.Duration(s.FlushDelayMs) * time.Millisecond
}

// HTTPConfig configures the local status API.
type HTTPConfig struct {
	Listen string `json:"listen,omitempty"` // e.g. "127.0.0.1:18791"; empty = disabled
	Token  string `json:"-"`                // bearer token; env VCWARDEN_HTTP_TOKEN only
}

// TelemetryConfig configures OpenTelemetry export for traces and spans.
type TelemetryConfig struct {
	Enabled     bool              `json:"enabled,omitempty"`
	Endpoint    string            `json:"endpoint,omitempty"`     // OTLP endpoint (e.g. "localhost:4317")
	Protocol    string            `json:"protocol,omitempty"`     // "grpc" (default) or "http"
	Insecure    bool              `json:"insecure,omitempty"`     // plaintext transport for local collectors
	ServiceName string            `json:"service_name,omitempty"` // default "vcwarden"
	Headers     map[string]string `json:"headers,omitempty"`
}

// Current returns a snapshot of the live settings. Slices are shared and must
// be treated as read-only.
func (c *Config) Current() Settings {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Settings
}

// Update applies fn under the write lock.
func (c *Config) Update(fn func(s *Settings)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fn(&c.Settings)
}

// ReplaceFrom copies all data fields from src into c, preserving c's mutex.
func (c *Config) ReplaceFrom(src *Config) {
	snapshot := src.Current()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Settings = snapshot
}
