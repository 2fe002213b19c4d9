package model

import "time"

// Roster is the value every sync and reload path hands back to callers
type Roster struct {
	Entries []RosterEntry `json:"users"`
	CSVPath string        `json:"csvPath"`
}

// SyncResult is the discriminated outcome of a roster sync. OK is true only
// when the roster came from a successful remote fetch or a fresh CSV. A
// rate-limited fetch that fell back to the CSV has OK false, RateLimited true
// and Roster set.
type SyncResult struct {
	OK          bool    `json:"ok"`
	Roster      *Roster `json:"-"`
	Error       string  `json:"error,omitempty"`
	RateLimited bool    `json:"rateLimited"`
	RetryAfter  *int    `json:"retryAfter"` // seconds
	LogPath     string  `json:"logPath,omitempty"`
}

// SyncSucceeded builds a successful result
func SyncSucceeded(roster *Roster) *SyncResult {
	return &SyncResult{OK: true, Roster: roster}
}

// SyncRateLimited builds the soft failure returned after falling back to the CSV
func SyncRateLimited(roster *Roster, msg string, retryAfter *int) *SyncResult {
	return &SyncResult{
		Roster:      roster,
		Error:       msg,
		RateLimited: true,
		RetryAfter:  retryAfter,
	}
}

// SyncFailed builds a hard failure
func SyncFailed(msg string, rateLimited bool, retryAfter *int) *SyncResult {
	return &SyncResult{
		Error:       msg,
		RateLimited: rateLimited,
		RetryAfter:  retryAfter,
	}
}

// RetryAfterSeconds converts a retry hint to whole seconds, nil when unknown
func RetryAfterSeconds(d time.Duration) *int {
	if d <= 0 {
		return nil
	}
	sec := int((d + time.Second - 1) / time.Second)
	return &sec
}
