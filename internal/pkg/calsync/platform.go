package calsync

import (
	"regexp"
	"strings"

	"github.com/velia/scriba/internal/pkg/gcal"
)

const (
	platformMeet  = "google_meet"
	platformZoom  = "zoom"
	platformTeams = "teams"
)

var (
	zoomRe  = regexp.MustCompile(`(?i)https://[a-z0-9-.]+zoom\.us/[^\s<]+`)
	meetRe  = regexp.MustCompile(`(?i)https://meet\.google\.com/[^\s<]+`)
	teamsRe = regexp.MustCompile(`(?i)https://teams\.microsoft\.com/[^\s<]+`)
)

// deriveMeetingLink extracts the joinable URL and the platform of an event.
// Conference entry wins over the hangout link, the description is the last resort
func deriveMeetingLink(ev *gcal.Event) (string, string) {
	url, platform := "", ""
	if ev.HangoutLink != "" {
		url, platform = ev.HangoutLink, platformMeet
	}
	if ev.ConferenceURL != "" {
		url = ev.ConferenceURL
		if ev.ConferenceName != "" {
			platform = ev.ConferenceName
		} else if strings.Contains(ev.ConferenceURL, "zoom") {
			platform = platformZoom
		} else if strings.Contains(ev.ConferenceURL, "teams") {
			platform = platformTeams
		}
	}
	if url == "" && ev.Description != "" {
		if m := zoomRe.FindString(ev.Description); m != "" {
			return m, platformZoom
		}
		if m := meetRe.FindString(ev.Description); m != "" {
			return m, platformMeet
		}
		if m := teamsRe.FindString(ev.Description); m != "" {
			return m, platformTeams
		}
	}
	return url, platform
}
