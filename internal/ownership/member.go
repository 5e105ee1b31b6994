package ownership

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/nextlevelbuilder/vcwarden/internal/store"
)

// MemberKeyPrefix namespaces member configs in the KV store.
const MemberKeyPrefix = "member:"

// MemberConfig holds one user's channel preferences, as last confirmed by
// the moderation bot. BannedUsers is ordered oldest first.
type MemberConfig struct {
	UserID         string   `json:"user_id"`
	CustomName     string   `json:"custom_name,omitempty"`
	UserLimit      int      `json:"user_limit,omitempty"`
	IsLocked       bool     `json:"is_locked,omitempty"`
	BannedUsers    []string `json:"banned_users,omitempty"`
	PermittedUsers []string `json:"permitted_users,omitempty"`
}

func (m MemberConfig) clone() MemberConfig {
	m.BannedUsers = slices.Clone(m.BannedUsers)
	m.PermittedUsers = slices.Clone(m.PermittedUsers)
	return m
}

// IsBanned reports whether target is in the banned list.
func (m MemberConfig) IsBanned(target string) bool {
	return slices.Contains(m.BannedUsers, target)
}

// IsPermitted reports whether target is in the permitted list.
func (m MemberConfig) IsPermitted(target string) bool {
	return slices.Contains(m.PermittedUsers, target)
}

// Persister receives serialized configs. store.Debouncer implements it.
type Persister interface {
	Set(key string, value []byte)
	Delete(key string)
}

// MemberConfigs is the member table, keyed by user ID. Entries are created
// lazily on first mutation and persisted through the Persister.
type MemberConfigs struct {
	mu      sync.RWMutex
	members map[string]*MemberConfig
	persist Persister
}

// NewMemberConfigs creates an empty table. persist may be nil.
func NewMemberConfigs(persist Persister) *MemberConfigs {
	return &MemberConfigs{
		members: make(map[string]*MemberConfig),
		persist: persist,
	}
}

// Load reads every persisted member from kv. Malformed entries are skipped.
func (c *MemberConfigs) Load(ctx context.Context, kv store.KV) (int, error) {
	entries, err := kv.List(ctx, MemberKeyPrefix)
	if err != nil {
		return 0, fmt.Errorf("list members: %w", err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for key, raw := range entries {
		var m MemberConfig
		if err := json.Unmarshal(raw, &m); err != nil {
			slog.Warn("skipping malformed member config", "key", key, "error", err)
			continue
		}
		if m.UserID == "" {
			m.UserID = strings.TrimPrefix(key, MemberKeyPrefix)
		}
		c.members[m.UserID] = &m
		n++
	}
	return n, nil
}

// Get returns a copy of userID's config (zero value with UserID set if none).
func (c *MemberConfigs) Get(userID string) MemberConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if m, ok := c.members[userID]; ok {
		return m.clone()
	}
	return MemberConfig{UserID: userID}
}

// Update runs fn on userID's config under the lock. fn returns whether it
// changed anything; only then is the result persisted. The Persister is
// called with the lock held and must not call back into MemberConfigs.
func (c *MemberConfigs) Update(userID string, fn func(m *MemberConfig) bool) bool {
	if userID == "" {
		return false
	}
	c.mu.Lock()
	m, ok := c.members[userID]
	if !ok {
		m = &MemberConfig{UserID: userID}
	}
	working := m.clone()
	if !fn(&working) {
		c.mu.Unlock()
		return false
	}
	c.members[userID] = &working
	defer c.mu.Unlock()

	// Persist under the lock so concurrent updates reach the persister in
	// the order they were applied.
	data, err := json.Marshal(working)
	if err != nil {
		slog.Warn("marshal member config", "user_id", userID, "error", err)
		return true
	}
	if c.persist != nil {
		c.persist.Set(MemberKeyPrefix+userID, data)
	}
	return true
}

// All returns every config, sorted by user ID.
func (c *MemberConfigs) All() []MemberConfig {
	c.mu.RLock()
	out := make([]MemberConfig, 0, len(c.members))
	for _, m := range c.members {
		out = append(out, m.clone())
	}
	c.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}

// Ban appends target to owner's banned list and drops any permit.
func (c *MemberConfigs) Ban(owner, target string) bool {
	return c.Update(owner, func(m *MemberConfig) bool {
		changed := false
		if !slices.Contains(m.BannedUsers, target) {
			m.BannedUsers = append(m.BannedUsers, target)
			changed = true
		}
		if i := slices.Index(m.PermittedUsers, target); i >= 0 {
			m.PermittedUsers = slices.Delete(m.PermittedUsers, i, i+1)
			changed = true
		}
		return changed
	})
}

// Unban removes target from owner's banned list.
func (c *MemberConfigs) Unban(owner, target string) bool {
	return c.Update(owner, func(m *MemberConfig) bool {
		i := slices.Index(m.BannedUsers, target)
		if i < 0 {
			return false
		}
		m.BannedUsers = slices.Delete(m.BannedUsers, i, i+1)
		return true
	})
}

// Permit appends target to owner's permitted list and lifts any ban.
func (c *MemberConfigs) Permit(owner, target string) bool {
	return c.Update(owner, func(m *MemberConfig) bool {
		changed := false
		if !slices.Contains(m.PermittedUsers, target) {
			m.PermittedUsers = append(m.PermittedUsers, target)
			changed = true
		}
		if i := slices.Index(m.BannedUsers, target); i >= 0 {
			m.BannedUsers = slices.Delete(m.BannedUsers, i, i+1)
			changed = true
		}
		return changed
	})
}

// Unpermit removes target from owner's permitted list.
func (c *MemberConfigs) Unpermit(owner, target string) bool {
	return c.Update(owner, func(m *MemberConfig) bool {
		i := slices.Index(m.PermittedUsers, target)
		if i < 0 {
			return false
		}
		m.PermittedUsers = slices.Delete(m.PermittedUsers, i, i+1)
		return true
	})
}

// SetLimit records the user limit.
func (c *MemberConfigs) SetLimit(owner string, limit int) bool {
	return c.Update(owner, func(m *MemberConfig) bool {
		if m.UserLimit == limit {
			return false
		}
		m.UserLimit = limit
		return true
	})
}

// SetLocked records the lock state.
func (c *MemberConfigs) SetLocked(owner string, locked bool) bool {
	return c.Update(owner, func(m *MemberConfig) bool {
		if m.IsLocked == locked {
			return false
		}
		m.IsLocked = locked
		return true
	})
}

// SetName records the custom channel name.
func (c *MemberConfigs) SetName(owner, name string) bool {
	return c.Update(owner, func(m *MemberConfig) bool {
		if m.CustomName == name {
			return false
		}
		m.CustomName = name
		return true
	})
}
