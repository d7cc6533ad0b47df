package model

import (
	"encoding/json"
	"strings"
)

// Notification cadences.
const (
	FrequencyDaily  = "daily"
	FrequencyWeekly = "weekly"
	FrequencyOff    = "off"
)

// Outbound delivery channels.
const (
	ChannelEmail   = "email"
	ChannelWebhook = "webhook"
)

// ChannelList tolerates channels stored either as a list or as a single
// comma-delimited string.
type ChannelList []string

func (l *ChannelList) UnmarshalJSON(data []byte) error {
	var items []string
	if err := json.Unmarshal(data, &items); err == nil {
		*l = items
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		var parsed ChannelList
		for _, item := range strings.Split(s, ",") {
			if token := strings.TrimSpace(item); token != "" {
				parsed = append(parsed, token)
			}
		}
		*l = parsed
		return nil
	}
	*l = nil
	return nil
}

// NotificationSettings is the stored, loosely validated shape of a user's
// notification preferences. Pointer fields distinguish "absent" from zero so
// that Resolve can merge over defaults.
type NotificationSettings struct {
	Frequency      string      `json:"frequency,omitempty"`
	Channels       ChannelList `json:"channels,omitempty"`
	DailyHour      *int        `json:"daily_hour,omitempty"`
	WeeklyDay      *int        `json:"weekly_day,omitempty"`
	SummaryEnabled *bool       `json:"summary_enabled,omitempty"`
	OverdueEnabled *bool       `json:"overdue_enabled,omitempty"`
	BadgeEnabled   *bool       `json:"badge_enabled,omitempty"`
}

// Preferences is the fully resolved, validated form the scheduler reads.
// WeeklyDay counts from 0 = Monday.
type Preferences struct {
	Frequency      string
	Channels       []string
	DailyHour      int
	WeeklyDay      int
	SummaryEnabled bool
	OverdueEnabled bool
	BadgeEnabled   bool
}

// DefaultPreferences returns the system defaults: daily email at 07:00,
// weekly day Monday, all categories on.
func DefaultPreferences() Preferences {
	return Preferences{
		Frequency:      FrequencyDaily,
		Channels:       []string{ChannelEmail},
		DailyHour:      7,
		WeeklyDay:      0,
		SummaryEnabled: true,
		OverdueEnabled: true,
		BadgeEnabled:   true,
	}
}

// Resolve merges stored settings over the defaults. Any value outside its
// valid domain is discarded and replaced by the default, never rejected.
func (s NotificationSettings) Resolve() Preferences {
	p := DefaultPreferences()

	switch strings.ToLower(strings.TrimSpace(s.Frequency)) {
	case FrequencyDaily:
		p.Frequency = FrequencyDaily
	case FrequencyWeekly:
		p.Frequency = FrequencyWeekly
	case FrequencyOff:
		p.Frequency = FrequencyOff
	}

	if channels := NormalizeChannels(s.Channels); len(channels) > 0 {
		p.Channels = channels
	}
	if s.DailyHour != nil && *s.DailyHour >= 0 && *s.DailyHour <= 23 {
		p.DailyHour = *s.DailyHour
	}
	if s.WeeklyDay != nil && *s.WeeklyDay >= 0 && *s.WeeklyDay <= 6 {
		p.WeeklyDay = *s.WeeklyDay
	}
	if s.SummaryEnabled != nil {
		p.SummaryEnabled = *s.SummaryEnabled
	}
	if s.OverdueEnabled != nil {
		p.OverdueEnabled = *s.OverdueEnabled
	}
	if s.BadgeEnabled != nil {
		p.BadgeEnabled = *s.BadgeEnabled
	}
	return p
}

// NormalizeChannels keeps recognized channels only, deduplicated.
func NormalizeChannels(channels []string) []string {
	var normalized []string
	seen := make(map[string]struct{}, len(channels))
	for _, channel := range channels {
		slug := strings.ToLower(strings.TrimSpace(channel))
		if slug != ChannelEmail && slug != ChannelWebhook {
			continue
		}
		if _, dup := seen[slug]; dup {
			continue
		}
		seen[slug] = struct{}{}
		normalized = append(normalized, slug)
	}
	return normalized
}

// HasChannel reports whether the resolved preferences enable a channel.
func (p Preferences) HasChannel(name string) bool {
	for _, channel := range p.Channels {
		if channel == name {
			return true
		}
	}
	return false
}
