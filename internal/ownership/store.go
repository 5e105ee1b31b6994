// Package ownership tracks who owns each managed voice channel and the
// per-member channel preferences mirrored from moderation bot replies.
package ownership

import (
	"sort"
	"sync"
	"time"

	"github.com/nextlevelbuilder/vcwarden/pkg/protocol"
)

// ChannelOwnership is the ownership record of one voice channel.
// When ClaimantID is set it is the authoritative owner.
type ChannelOwnership struct {
	ChannelID  string    `json:"channel_id"`
	CreatorID  string    `json:"creator_id,omitempty"`
	ClaimantID string    `json:"claimant_id,omitempty"`
	CreatedAt  time.Time `json:"created_at,omitempty"`
	ClaimedAt  time.Time `json:"claimed_at,omitempty"`
}

// Owner returns the effective owner: claimant if present, else creator.
func (o ChannelOwnership) Owner() string {
	if o.ClaimantID != "" {
		return o.ClaimantID
	}
	return o.CreatorID
}

// Store is the in-memory ownership table, keyed by channel ID.
type Store struct {
	mu       sync.RWMutex
	channels map[string]*ChannelOwnership
}

func NewStore() *Store {
	return &Store{channels: make(map[string]*ChannelOwnership)}
}

// Get returns a copy of the record for channelID.
func (s *Store) Get(channelID string) (ChannelOwnership, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.channels[channelID]
	if !ok {
		return ChannelOwnership{}, false
	}
	return *o, true
}

// Set records userID in the given slot (protocol.OwnershipSlot*). The record
// is created on first use. changed is false when both the ID and timestamp
// already match, so replays of the same reply are no-ops. prev is the record
// before the update.
func (s *Store) Set(channelID, slot, userID string, at time.Time) (prev ChannelOwnership, changed bool) {
	prev, _, changed = s.Record(channelID, slot, userID, at)
	return prev, changed
}

// Record is Set that also returns the record after the update, both taken
// under one lock so prev.Owner() and next.Owner() describe a single
// transition.
func (s *Store) Record(channelID, slot, userID string, at time.Time) (prev, next ChannelOwnership, changed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.channels[channelID]
	if !ok {
		o = &ChannelOwnership{ChannelID: channelID}
	}
	prev = *o
	updated := *o

	switch slot {
	case protocol.OwnershipSlotCreator:
		if o.CreatorID == userID && o.CreatedAt.Equal(at) {
			return prev, prev, false
		}
		updated.CreatorID, updated.CreatedAt = userID, at
	case protocol.OwnershipSlotClaimant:
		if o.ClaimantID == userID && o.ClaimedAt.Equal(at) {
			return prev, prev, false
		}
		updated.ClaimantID, updated.ClaimedAt = userID, at
	default:
		return prev, prev, false
	}
	s.channels[channelID] = &updated
	return prev, updated, true
}

// Remove drops the record for channelID.
func (s *Store) Remove(channelID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.channels[channelID]; !ok {
		return false
	}
	delete(s.channels, channelID)
	return true
}

// IsOwner reports whether userID is recorded as creator or claimant.
func (s *Store) IsOwner(channelID, userID string) bool {
	if userID == "" {
		return false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.channels[channelID]
	return ok && (o.CreatorID == userID || o.ClaimantID == userID)
}

// EffectiveOwner returns the authoritative owner of channelID, or "".
func (s *Store) EffectiveOwner(channelID string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if o, ok := s.channels[channelID]; ok {
		return o.Owner()
	}
	return ""
}

// All returns every record, sorted by channel ID.
func (s *Store) All() []ChannelOwnership {
	s.mu.RLock()
	out := make([]ChannelOwnership, 0, len(s.channels))
	for _, o := range s.channels {
		out = append(out, *o)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ChannelID < out[j].ChannelID })
	return out
}

// Len returns how many channels are tracked.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.channels)
}
