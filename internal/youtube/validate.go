package youtube

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/tubegate/tubegate/internal/cache"
)

// ErrInvalidInput tags validation failures so dispatch can classify them.
var ErrInvalidInput = errors.New("invalid input")

var (
	channelIDPattern = regexp.MustCompile(`^UC[A-Za-z0-9_-]{22}$`)
	handlePattern    = regexp.MustCompile(`^@[A-Za-z0-9._-]{3,30}$`)
	langPattern      = regexp.MustCompile(`^[a-z]{2,3}(-[A-Za-z]{2,8})?$`)
	playlistPattern  = regexp.MustCompile(`^(PL|UU|LL|FL|OL)[A-Za-z0-9_-]{10,42}$`)
)

// SearchOrder is the accepted set of search result orderings.
var searchOrders = map[string]bool{
	"relevance": true,
	"date":      true,
	"rating":    true,
	"title":     true,
	"viewCount": true,
}

const (
	// MaxResultsCap is the API's page ceiling.
	MaxResultsCap = 50
	// DefaultMaxResults applies when the caller does not ask for a count.
	DefaultMaxResults = 10
	maxQueryLength    = 500
)

// ValidateVideoID accepts a bare video ID or any recognized YouTube URL and
// returns the canonical 11-character ID.
func ValidateVideoID(input string) (string, error) {
	id, ok := cache.ExtractVideoID(input)
	if !ok {
		return "", fmt.Errorf("%w: not a video ID or YouTube URL", ErrInvalidInput)
	}
	return id, nil
}

// ChannelRef is a validated channel reference: either a canonical UC ID or
// an @handle to resolve.
type ChannelRef struct {
	ID     string
	Handle string
}

// ValidateChannel accepts a UC channel ID, an @handle, or a channel URL.
func ValidateChannel(input string) (ChannelRef, error) {
	input = strings.TrimSpace(input)

	for _, prefix := range []string{
		"https://www.youtube.com/channel/",
		"https://youtube.com/channel/",
	} {
		if rest, found := strings.CutPrefix(input, prefix); found {
			input = strings.SplitN(rest, "/", 2)[0]
			break
		}
	}
	for _, prefix := range []string{
		"https://www.youtube.com/",
		"https://youtube.com/",
	} {
		if rest, found := strings.CutPrefix(input, prefix); found && strings.HasPrefix(rest, "@") {
			input = strings.SplitN(rest, "/", 2)[0]
			break
		}
	}

	if channelIDPattern.MatchString(input) {
		return ChannelRef{ID: input}, nil
	}
	if handlePattern.MatchString(input) {
		return ChannelRef{Handle: input}, nil
	}
	return ChannelRef{}, fmt.Errorf("%w: not a channel ID, @handle, or channel URL", ErrInvalidInput)
}

// ValidatePlaylistID checks a playlist ID.
func ValidatePlaylistID(input string) (string, error) {
	input = strings.TrimSpace(input)
	if !playlistPattern.MatchString(input) {
		return "", fmt.Errorf("%w: not a playlist ID", ErrInvalidInput)
	}
	return input, nil
}

// ValidateLanguage checks a BCP-47-ish language code ("en", "pt-BR").
// Empty is allowed and means "best available".
func ValidateLanguage(input string) (string, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return "", nil
	}
	normalized := strings.ToLower(strings.SplitN(input, "-", 2)[0])
	if rest := strings.SplitN(input, "-", 2); len(rest) == 2 {
		normalized += "-" + rest[1]
	}
	if !langPattern.MatchString(normalized) {
		return "", fmt.Errorf("%w: not a language code", ErrInvalidInput)
	}
	return normalized, nil
}

// ValidateQuery checks a search query.
func ValidateQuery(input string) (string, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return "", fmt.Errorf("%w: empty query", ErrInvalidInput)
	}
	if len(input) > maxQueryLength {
		return "", fmt.Errorf("%w: query exceeds %d characters", ErrInvalidInput, maxQueryLength)
	}
	return input, nil
}

// ValidateMaxResults clamps the requested result count into [1, cap].
// Zero means default.
func ValidateMaxResults(n int) (int64, error) {
	switch {
	case n < 0:
		return 0, fmt.Errorf("%w: max_results must be positive", ErrInvalidInput)
	case n == 0:
		return DefaultMaxResults, nil
	case n > MaxResultsCap:
		return MaxResultsCap, nil
	default:
		return int64(n), nil
	}
}

// ValidatePrivacy checks a playlist privacy status. Empty means private.
func ValidatePrivacy(input string) (string, error) {
	switch input {
	case "":
		return "private", nil
	case "public", "private", "unlisted":
		return input, nil
	default:
		return "", fmt.Errorf("%w: unknown privacy status %q", ErrInvalidInput, input)
	}
}

// ValidateOrder checks a search ordering. Empty means relevance.
func ValidateOrder(input string) (string, error) {
	if input == "" {
		return "relevance", nil
	}
	if !searchOrders[input] {
		return "", fmt.Errorf("%w: unknown order %q", ErrInvalidInput, input)
	}
	return input, nil
}
