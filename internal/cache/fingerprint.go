package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strings"
)

var videoIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{11}$`)

// Fingerprint derives a deterministic cache key from an operation name and
// its arguments. Keys are stable across argument ordering, and video URL
// arguments collapse to the bare video ID so that
// "https://youtube.com/watch?v=X" and "X" share one entry.
func Fingerprint(op string, args map[string]string) string {
	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(op)
	for _, k := range keys {
		b.WriteByte('\x00')
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(canonicalizeArg(k, args[k]))
	}

	sum := sha256.Sum256([]byte(b.String()))
	return fmt.Sprintf("%s:%s", op, hex.EncodeToString(sum[:16]))
}

// canonicalizeArg normalizes argument values that have several spellings.
func canonicalizeArg(key, value string) string {
	switch key {
	case "video_id", "video":
		if id, ok := ExtractVideoID(value); ok {
			return id
		}
	case "lang", "language":
		return strings.ToLower(value)
	}
	return value
}

// ExtractVideoID accepts a bare 11-character video ID or any of the common
// YouTube URL shapes and returns the canonical ID.
func ExtractVideoID(input string) (string, bool) {
	input = strings.TrimSpace(input)
	if videoIDPattern.MatchString(input) {
		return input, true
	}

	u, err := url.Parse(input)
	if err != nil || u.Host == "" {
		return "", false
	}
	host := strings.TrimPrefix(strings.ToLower(u.Host), "www.")
	switch host {
	case "youtube.com", "m.youtube.com", "music.youtube.com":
		if v := u.Query().Get("v"); videoIDPattern.MatchString(v) {
			return v, true
		}
		// /embed/ID, /shorts/ID, /live/ID
		parts := strings.Split(strings.Trim(u.Path, "/"), "/")
		if len(parts) == 2 && videoIDPattern.MatchString(parts[1]) {
			switch parts[0] {
			case "embed", "shorts", "live", "v":
				return parts[1], true
			}
		}
	case "youtu.be":
		id := strings.Trim(u.Path, "/")
		if videoIDPattern.MatchString(id) {
			return id, true
		}
	}
	return "", false
}
