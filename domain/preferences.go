package domain

import "strings"

// Preferences represents user configurable options.
type Preferences struct {
	Language             string `json:"language"`
	TimeZone             string `json:"timeZone"`
	Theme                string `json:"theme"`
	DateFormat           string `json:"dateFormat"`
	TimeFormat           string `json:"timeFormat"`
	WeekStart            string `json:"weekFormat"`
	ShowOrgTasks         bool   `json:"showOrgTasks"`
	BrowserNotifications bool   `json:"browserNotifications"`
}

// DefaultPreferences is returned for users who never saved any.
func DefaultPreferences() Preferences {
	return Preferences{
		Language:     "en",
		TimeZone:     "GMT+00:00",
		Theme:        "light",
		DateFormat:   "31 Dec 2025",
		TimeFormat:   "12 hours: 9:00 PM",
		WeekStart:    "Monday",
		ShowOrgTasks: true,
	}
}

// Validate fills blanks from the defaults and rejects unknown themes.
func (p *Preferences) Validate() error {
	def := DefaultPreferences()
	fill := func(dst *string, v string) {
		*dst = strings.TrimSpace(*dst)
		if *dst == "" {
			*dst = v
		}
	}
	fill(&p.Language, def.Language)
	fill(&p.TimeZone, def.TimeZone)
	fill(&p.Theme, def.Theme)
	fill(&p.DateFormat, def.DateFormat)
	fill(&p.TimeFormat, def.TimeFormat)
	fill(&p.WeekStart, def.WeekStart)
	switch p.Theme {
	case "light", "dark", "system":
		return nil
	default:
		return Invalid("theme", "theme must be light, dark or system")
	}
}

// Profile holds the personal details a user may fill in.
type Profile struct {
	ID          string `json:"id,omitempty"`
	OwnerID     string `json:"userId"`
	FirstName   string `json:"firstName"`
	LastName    string `json:"lastName"`
	Country     string `json:"country"`
	PhoneCode   string `json:"phoneCode"`
	PhoneNumber string `json:"phoneNumber"`
	Location    string `json:"location"`
	BirthDay    string `json:"birthDay"`
	BirthMonth  string `json:"birthMonth"`
}

// Identity is the authenticated account as reported by the account service.
type Identity struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"emailVerification"`
}
