// Package model provides domain types shared across packages.
package model

import (
	"fmt"
	"strings"
)

// Platform identifies an external catalog that entries are matched against.
type Platform string

const (
	PlatformBgmTV Platform = "BGM_TV"
	PlatformTMDB  Platform = "TMDB"
)

// ParsePlatform parses a platform from string (case-insensitive).
func ParsePlatform(s string) (Platform, error) {
	switch strings.ToUpper(s) {
	case "BGM_TV", "BGMTV", "BGM":
		return PlatformBgmTV, nil
	case "TMDB":
		return PlatformTMDB, nil
	default:
		return "", fmt.Errorf("unknown platform: %q", s)
	}
}

// SupportsSeason reports whether the platform stores a season number
// alongside the match. Only TMDB models seasons.
func (p Platform) SupportsSeason() bool {
	return p == PlatformTMDB
}

// MediaType classifies a media entry.
type MediaType string

const (
	MediaTV      MediaType = "TV"
	MediaMovie   MediaType = "Movie"
	MediaOVA     MediaType = "OVA"
	MediaONA     MediaType = "ONA"
	MediaSpecial MediaType = "Special"
	MediaUnknown MediaType = "Unknown"
)

// ReviewStatus tracks the verification state of a mapping.
type ReviewStatus string

const (
	ReviewUnmatched ReviewStatus = "UnMatched"
	ReviewReady     ReviewStatus = "Ready"
	ReviewAccepted  ReviewStatus = "Accepted"
	ReviewRejected  ReviewStatus = "Rejected"
	ReviewDropped   ReviewStatus = "Dropped"
)

// ParseReviewStatus parses a review status from string (case-insensitive).
func ParseReviewStatus(s string) (ReviewStatus, error) {
	for _, status := range []ReviewStatus{
		ReviewUnmatched, ReviewReady, ReviewAccepted, ReviewRejected, ReviewDropped,
	} {
		if strings.EqualFold(s, string(status)) {
			return status, nil
		}
	}
	return "", fmt.Errorf("unknown review status: %q", s)
}

// MediaEntry is a catalog entry awaiting a match. The identifying fields
// (titles, year, air date, media type, episode number) are what the agent
// sees; everything else stays in storage.
type MediaEntry struct {
	AnilistID     int       `json:"anilist_id"`
	Titles        string    `json:"titles"`
	Year          int       `json:"year"`
	MediaType     MediaType `json:"media_type"`
	StartDate     string    `json:"start_date,omitempty"`
	EpisodeNumber int       `json:"episode_number,omitempty"`
}

// MatchResult is the structured outcome of one agent run. All fields are
// pointers so an empty submission ("no confident match") is representable.
// Immutable once produced.
type MatchResult struct {
	ID              *int    `json:"id,omitempty"`
	Name            *string `json:"name,omitempty"`
	Season          *int    `json:"season,omitempty"`
	ConfidenceScore *int    `json:"confidence_score,omitempty"`
}

// Found reports whether the result carries a platform id.
func (r MatchResult) Found() bool {
	return r.ID != nil
}

// Score returns the confidence score, defaulting to zero when absent.
func (r MatchResult) Score() int {
	if r.ConfidenceScore == nil {
		return 0
	}
	return *r.ConfidenceScore
}
