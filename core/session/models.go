package session

import (
	"fmt"
	"strings"
	"time"

	"github.com/mssola/useragent"

	"github.com/hudoor/hudoor/core/device"
	"github.com/hudoor/hudoor/core/roster"
)

type (
	// Submission is one attendance form as posted by a student's browser.
	Submission struct {
		Code        string
		StudentName string
		StudentID   string
		Device      device.Attributes
	}

	// DeviceSummary is the human readable description of a submitting device.
	DeviceSummary struct {
		Type     string `json:"type"`
		OS       string `json:"os"`
		Browser  string `json:"browser"`
		Screen   string `json:"screen"`
		Language string `json:"language"`
		Timezone string `json:"timezone"`
		IP       string `json:"ip"`
	}

	// Attendee is a student marked present during the session.
	Attendee struct {
		Name      string        `json:"name"`
		StudentID string        `json:"student_id"`
		At        time.Time     `json:"at"`
		Match     string        `json:"match"` // device verification tier, "registered" for new devices
		Device    DeviceSummary `json:"device"`
	}

	Status struct {
		Code      string     `json:"code"`
		Lecture   string     `json:"lecture"`
		Date      string     `json:"date"`
		StartedAt time.Time  `json:"started_at"`
		EndsAt    *time.Time `json:"ends_at,omitempty"`
		Ended     bool       `json:"ended"`
		Attendees []Attendee `json:"attendees"`
	}

	// Report is the outcome of an ended session.
	Report struct {
		Code      string
		Lecture   string
		Date      time.Time
		StartedAt time.Time
		EndedAt   time.Time
		Summary   roster.Summary
		Swept     int // rows marked absent by the end-of-session sweep
		Attendees []Attendee
		Save      roster.SaveResult
	}
)

// Summarize describes the device behind `attrs`.
func Summarize(attrs device.Attributes) DeviceSummary {
	ua := useragent.New(attrs.UserAgent)

	kind := "Desktop"
	switch {
	case ua.Bot():
		kind = "Bot"
	case strings.Contains(attrs.UserAgent, "iPad") || strings.Contains(attrs.UserAgent, "Tablet"):
		kind = "Tablet"
	case ua.Mobile():
		kind = "Mobile"
	}

	browser, version := ua.Browser()
	if version != "" {
		browser += " " + version
	}

	sum := DeviceSummary{
		Type:     kind,
		OS:       ua.OS(),
		Browser:  strings.TrimSpace(browser),
		Language: attrs.Language,
		Timezone: attrs.Timezone,
		IP:       attrs.IPAddress,
	}
	if sum.OS == "" {
		sum.OS = attrs.Platform
	}
	if attrs.ScreenWidth > 0 && attrs.ScreenHeight > 0 {
		sum.Screen = fmt.Sprintf("%dx%d", attrs.ScreenWidth, attrs.ScreenHeight)
	}
	return sum
}

func (d DeviceSummary) String() string {
	parts := make([]string, 0, 4)
	for _, p := range []string{d.Type, d.OS, d.Browser, d.Screen} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ", ")
}
