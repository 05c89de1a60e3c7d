package models

import "time"

const (
	StatusPending   = "pending"
	StatusActive    = "active"
	StatusSuspended = "suspended"
)

const (
	TypeTrial     = "trial"
	TypeMonthly   = "monthly"
	TypeQuarterly = "quarterly"
	TypeAnnual    = "annual"
	TypeLifetime  = "lifetime"
)

const (
	DefaultType           = TypeMonthly
	DefaultCheckFrequency = "weekly"
	defaultDurationDays   = 30
)

// TimeLayout is the wire format for license timestamps (UTC, millisecond precision).
const TimeLayout = "2006-01-02T15:04:05.000Z"

var durationDays = map[string]int{
	TypeTrial:     7,
	TypeMonthly:   30,
	TypeQuarterly: 90,
	TypeAnnual:    365,
	TypeLifetime:  36500,
}

var checkFrequencies = map[string]string{
	TypeTrial:     "once",
	TypeMonthly:   "weekly",
	TypeQuarterly: "biweekly",
	TypeAnnual:    "monthly",
	TypeLifetime:  "never",
}

// License is the only record the service keeps. Adding fields here widens
// what is stored about a customer, so it stays limited to what is below.
type License struct {
	Key            string     `json:"key"`
	Email          string     `json:"email"`
	Type           string     `json:"type"`
	Status         string     `json:"status"`
	CheckFrequency string     `json:"checkFrequency"`
	CreatedAt      time.Time  `json:"createdAt"`
	ActivatedAt    *time.Time `json:"activatedAt,omitempty"`
	ExpiresAt      *time.Time `json:"expiresAt"`
}

// DurationDays returns how long a license of the given type lasts once activated.
// Unknown types last as long as a monthly license.
func DurationDays(licenseType string) int {
	if days, ok := durationDays[licenseType]; ok {
		return days
	}
	return defaultDurationDays
}

// CheckFrequencyFor returns how often clients holding the given type should re-verify.
func CheckFrequencyFor(licenseType string) string {
	if freq, ok := checkFrequencies[licenseType]; ok {
		return freq
	}
	return DefaultCheckFrequency
}

// IsKnownType reports whether licenseType is one of the fixed license types.
func IsKnownType(licenseType string) bool {
	_, ok := durationDays[licenseType]
	return ok
}

func (l *License) IsExpired(now time.Time) bool {
	return l.ExpiresAt != nil && l.ExpiresAt.Before(now)
}

// Activate moves a pending license to active, binding it to email and
// computing its expiry from now.
func (l *License) Activate(email string, now time.Time) {
	activatedAt := now.UTC()
	expiresAt := activatedAt.AddDate(0, 0, DurationDays(l.Type))

	l.Status = StatusActive
	l.Email = email
	l.ActivatedAt = &activatedAt
	l.ExpiresAt = &expiresAt
	l.CheckFrequency = CheckFrequencyFor(l.Type)
}

func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}
