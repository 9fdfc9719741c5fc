// Package usercache holds the process-wide, synchronously readable cache of
// per-account attributes (blocks, mutes, keywords, display info) and the
// refresh pipeline that keeps it coherent with the durable and auxiliary
// stores. Reads never touch a backing store; business logic depends on that
// to filter content inline for many concurrent requests.
package usercache

import (
	"strings"

	"shipboard/pkg/models"
)

// Snapshot is an immutable point-in-time copy of one account's
// cache-relevant attributes. Snapshots are never mutated after
// construction; the cache only ever replaces them wholesale, so any
// reference a reader holds is always fully formed and self-consistent.
type Snapshot struct {
	ID          string
	Username    string
	DisplayName string
	AvatarRef   string
	// ProfileUpdatedTS is monotonically non-decreasing per account (ns);
	// ChangedSince queries key off it.
	ProfileUpdatedTS int64

	BlockedIDs map[string]struct{}
	MutedIDs   map[string]struct{}
	MuteWords  []string
	AlertWords []string
}

// newSnapshot folds an account row and its derived sets into a snapshot.
func newSnapshot(a models.Account, ds models.DerivedSets) *Snapshot {
	s := &Snapshot{
		ID:               a.ID,
		Username:         a.Username,
		DisplayName:      a.DisplayName,
		AvatarRef:        a.AvatarRef,
		ProfileUpdatedTS: a.ProfileUpdatedTS,
		BlockedIDs:       make(map[string]struct{}, len(ds.BlockedIDs)),
		MutedIDs:         make(map[string]struct{}, len(ds.MutedIDs)),
		MuteWords:        append([]string(nil), ds.MuteWords...),
		AlertWords:       append([]string(nil), ds.AlertWords...),
	}
	for _, id := range ds.BlockedIDs {
		s.BlockedIDs[id] = struct{}{}
	}
	for _, id := range ds.MutedIDs {
		s.MutedIDs[id] = struct{}{}
	}
	return s
}

// Blocks reports whether the snapshot's account blocks the given id.
func (s *Snapshot) Blocks(id string) bool {
	_, ok := s.BlockedIDs[id]
	return ok
}

// Mutes reports whether the snapshot's account mutes the given id.
func (s *Snapshot) Mutes(id string) bool {
	_, ok := s.MutedIDs[id]
	return ok
}

// DisplayedName returns the display name, falling back to the username.
func (s *Snapshot) DisplayedName() string {
	if s.DisplayName != "" {
		return s.DisplayName
	}
	return s.Username
}

func normalizeUsername(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
