package services

import (
	"net/url"
	"strings"
)

const DefaultInviteBaseURL = "https://restaurantmatchmaker.vercel.app/invite"

// InviteLink builds the shareable link a partner opens to join a session
func InviteLink(baseURL, sessionID string) string {
	if baseURL == "" {
		baseURL = DefaultInviteBaseURL
	}
	return strings.TrimRight(baseURL, "/") + "/" + url.PathEscape(sessionID)
}
