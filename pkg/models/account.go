package models

// Account is the durable store's row of record for one account. The user
// cache derives its snapshots from this plus the auxiliary store's sets.
type Account struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	// DisplayName is optional; clients fall back to Username when empty.
	DisplayName string `json:"display_name,omitempty"`
	// AvatarRef is an opaque reference to the account's avatar image.
	AvatarRef string `json:"avatar_ref,omitempty"`
	// ProfileUpdatedTS is the last profile change timestamp (ns). It is
	// monotonically non-decreasing and drives "changed since" queries.
	ProfileUpdatedTS int64 `json:"profile_updated_ts"`
	// CreatedTS records account creation time (ns).
	CreatedTS int64 `json:"created_ts,omitempty"`
}

// DerivedSets are the auxiliary store's per-account sets folded into a
// cache snapshot on every refresh.
type DerivedSets struct {
	BlockedIDs []string `json:"blocked_ids"`
	MutedIDs   []string `json:"muted_ids"`
	MuteWords  []string `json:"mute_words"`
	AlertWords []string `json:"alert_words"`
}
