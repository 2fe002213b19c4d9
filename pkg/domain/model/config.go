package model

import "regexp"

// AppConfig is loaded once at startup and never re-read
type AppConfig struct {
	SlackBotToken    string        `masq:"secret"`
	SendOnlyToCohort bool          // "sendOnlyToWfhIspUsers"
	ExceptionUserIDs []SlackUserID // "exceptionUserIds"
}

// cohortMarker matches the WFH/ISP tags operators put in display names
var cohortMarker = regexp.MustCompile(`(?i)\b(?:WFH|ISP)\b`)

// CohortFilter restricts the fetched directory to the WFH/ISP cohort
type CohortFilter struct {
	Enabled    bool
	exceptions map[SlackUserID]struct{}
}

// NewCohortFilter builds the filter configured by cfg
func NewCohortFilter(cfg *AppConfig) CohortFilter {
	if cfg == nil {
		return CohortFilter{}
	}
	f := CohortFilter{
		Enabled:    cfg.SendOnlyToCohort,
		exceptions: make(map[SlackUserID]struct{}, len(cfg.ExceptionUserIDs)),
	}
	for _, id := range cfg.ExceptionUserIDs {
		f.exceptions[id] = struct{}{}
	}
	return f
}

// Allows reports whether a member passes the filter. Only the display name
// is matched against the marker.
func (f CohortFilter) Allows(id SlackUserID, displayName string) bool {
	if !f.Enabled {
		return true
	}
	if cohortMarker.MatchString(displayName) {
		return true
	}
	_, ok := f.exceptions[id]
	return ok
}
