package model

// SlackUserID represents a unique identifier for a Slack user
type SlackUserID string

// SlackbotID is the reserved system account present in every workspace
const SlackbotID SlackUserID = "USLACKBOT"

// RosterEntry is one workspace member mirrored locally
type RosterEntry struct {
	ID        SlackUserID `json:"id"`
	Username  string      `json:"username"`  // Slack handle, not persisted
	SlackName string      `json:"slackName"` // Display name, falling back to real name and handle
	Email     string      `json:"email,omitempty"`
	GlatsName string      `json:"glatsName"` // Operator annotation, only ever sourced from the CSV
}

// Label returns the name used for greetings and attachment lookup
func (x RosterEntry) Label() string {
	if x.GlatsName != "" {
		return x.GlatsName
	}
	return x.SlackName
}

// MergeAnnotations copies fetched entries and attaches the annotation stored
// for each id. Ids without a stored annotation get an empty one.
func MergeAnnotations(fetched []RosterEntry, annotations map[SlackUserID]string) []RosterEntry {
	merged := make([]RosterEntry, len(fetched))
	for i, entry := range fetched {
		entry.GlatsName = annotations[entry.ID]
		merged[i] = entry
	}
	return Dedupe(merged)
}

// Dedupe keeps one entry per id. The position of the first occurrence is
// kept and the value of the last occurrence wins.
func Dedupe(entries []RosterEntry) []RosterEntry {
	index := make(map[SlackUserID]int, len(entries))
	result := make([]RosterEntry, 0, len(entries))
	for _, entry := range entries {
		if i, ok := index[entry.ID]; ok {
			result[i] = entry
			continue
		}
		index[entry.ID] = len(result)
		result = append(result, entry)
	}
	return result
}
