package db

import (
	"strings"
	"time"
)

// Notification categories, one per dispatch event type.
const (
	CategoryNewMatch     = "new_match"
	CategoryNewLike      = "new_like"
	CategoryNewMessage   = "new_message"
	CategoryIncomingCall = "incoming_call"
)

// NotificationSettings is the fixed-shape preference record embedded in users.
// Quiet hours are minutes after local midnight; the window may wrap midnight.
type NotificationSettings struct {
	NewMatch          bool `gorm:"not null" json:"new_match"`
	NewLike           bool `gorm:"not null" json:"new_like"`
	NewMessage        bool `gorm:"not null" json:"new_message"`
	IncomingCall      bool `gorm:"not null" json:"incoming_call"`
	QuietHoursEnabled bool `gorm:"not null" json:"quiet_hours_enabled"`
	QuietStartMinute  int  `gorm:"not null" json:"quiet_start_minute"`
	QuietEndMinute    int  `gorm:"not null" json:"quiet_end_minute"`
	UTCOffsetMinutes  int  `gorm:"not null" json:"utc_offset_minutes"`
}

// DefaultNotificationSettings enables every category with no quiet hours.
func DefaultNotificationSettings() NotificationSettings {
	return NotificationSettings{NewMatch: true, NewLike: true, NewMessage: true, IncomingCall: true}
}

// Columns maps the record onto its embedded user columns.
func (s NotificationSettings) Columns() map[string]any {
	return map[string]any{
		"notify_new_match":           s.NewMatch,
		"notify_new_like":            s.NewLike,
		"notify_new_message":         s.NewMessage,
		"notify_incoming_call":       s.IncomingCall,
		"notify_quiet_hours_enabled": s.QuietHoursEnabled,
		"notify_quiet_start_minute":  s.QuietStartMinute,
		"notify_quiet_end_minute":    s.QuietEndMinute,
		"notify_utc_offset_minutes":  s.UTCOffsetMinutes,
	}
}

// Validate checks the quiet-hours window bounds.
func (s NotificationSettings) Validate() bool {
	inDay := func(m int) bool { return m >= 0 && m < 24*60 }
	return inDay(s.QuietStartMinute) && inDay(s.QuietEndMinute) &&
		s.UTCOffsetMinutes >= -14*60 && s.UTCOffsetMinutes <= 14*60
}

// Allows reports whether a push of the given category may be delivered at now.
// Calls ignore quiet hours.
func (s NotificationSettings) Allows(category string, now time.Time) bool {
	switch category {
	case CategoryNewMatch:
		if !s.NewMatch {
			return false
		}
	case CategoryNewLike:
		if !s.NewLike {
			return false
		}
	case CategoryNewMessage:
		if !s.NewMessage {
			return false
		}
	case CategoryIncomingCall:
		return s.IncomingCall
	default:
		return false
	}
	return !s.inQuietHours(now)
}

func (s NotificationSettings) inQuietHours(now time.Time) bool {
	if !s.QuietHoursEnabled || s.QuietStartMinute == s.QuietEndMinute {
		return false
	}
	local := now.UTC().Add(time.Duration(s.UTCOffsetMinutes) * time.Minute)
	m := local.Hour()*60 + local.Minute()
	if s.QuietStartMinute < s.QuietEndMinute {
		return m >= s.QuietStartMinute && m < s.QuietEndMinute
	}
	return m >= s.QuietStartMinute || m < s.QuietEndMinute
}

// Gender bitmask values.
const (
	GenderMale      uint8 = 1 << 0
	GenderFemale    uint8 = 1 << 1
	GenderNonBinary uint8 = 1 << 2
)

var genderNames = []struct {
	name string
	bit  uint8
}{
	{"male", GenderMale},
	{"female", GenderFemale},
	{"nonbinary", GenderNonBinary},
}

// GenderMask maps a gender name to its bit, 0 when unknown.
func GenderMask(g string) uint8 {
	g = strings.ToLower(strings.TrimSpace(g))
	for _, gn := range genderNames {
		if gn.name == g {
			return gn.bit
		}
	}
	return 0
}

// MaskFromGenders folds names into a mask; ok is false on an unknown name.
func MaskFromGenders(names []string) (mask uint8, ok bool) {
	for _, n := range names {
		bit := GenderMask(n)
		if bit == 0 {
			return 0, false
		}
		mask |= bit
	}
	return mask, true
}

// GendersFromMask expands a mask into names in a fixed order.
func GendersFromMask(mask uint8) []string {
	out := []string{}
	for _, gn := range genderNames {
		if mask&gn.bit != 0 {
			out = append(out, gn.name)
		}
	}
	return out
}

// MaskFromAll is the mask seeking every gender.
func MaskFromAll() uint8 { return GenderMale | GenderFemale | GenderNonBinary }
