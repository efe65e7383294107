package youtube

import (
	"bufio"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// maxCaptionBytes bounds a downloaded caption body.
const maxCaptionBytes = 4 << 20

// copyBounded copies r into w up to maxCaptionBytes, failing on overrun.
func copyBounded(w io.Writer, r io.Reader) (int64, error) {
	n, err := io.Copy(w, io.LimitReader(r, maxCaptionBytes+1))
	if err != nil {
		return n, err
	}
	if n > maxCaptionBytes {
		return n, fmt.Errorf("caption body exceeds %d bytes", maxCaptionBytes)
	}
	return n, nil
}

// srtTimeLine matches "00:01:02,345 --> 00:01:04,000" with optional
// position hints after the times.
var srtTimeLine = regexp.MustCompile(
	`^(\d{2}):(\d{2}):(\d{2})[,.](\d{3})\s+-->\s+(\d{2}):(\d{2}):(\d{2})[,.](\d{3})`)

// parseSRT decodes SubRip text into ordered segments. Cue indices are
// ignored; malformed blocks are skipped rather than failing the whole
// transcript.
func parseSRT(raw string) ([]TranscriptSegment, error) {
	var segments []TranscriptSegment

	scanner := bufio.NewScanner(strings.NewReader(raw))
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	var cur *TranscriptSegment
	var text []string

	flush := func() {
		if cur != nil && len(text) > 0 {
			cur.Text = strings.Join(text, " ")
			segments = append(segments, *cur)
		}
		cur = nil
		text = nil
	}

	for scanner.Scan() {
		line := strings.TrimSpace(strings.TrimPrefix(scanner.Text(), "\ufeff"))

		if line == "" {
			flush()
			continue
		}

		if m := srtTimeLine.FindStringSubmatch(line); m != nil {
			flush()
			cur = &TranscriptSegment{
				Start: srtTimestamp(m[1], m[2], m[3], m[4]),
				End:   srtTimestamp(m[5], m[6], m[7], m[8]),
			}
			continue
		}

		if cur == nil {
			// Cue index or stray header line.
			continue
		}
		if cleaned := stripMarkup(line); cleaned != "" {
			text = append(text, cleaned)
		}
	}
	flush()

	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(segments) == 0 {
		return nil, fmt.Errorf("no cues found")
	}
	return segments, nil
}

func srtTimestamp(h, m, s, ms string) time.Duration {
	hh, _ := strconv.Atoi(h)
	mm, _ := strconv.Atoi(m)
	ss, _ := strconv.Atoi(s)
	mss, _ := strconv.Atoi(ms)
	return time.Duration(hh)*time.Hour +
		time.Duration(mm)*time.Minute +
		time.Duration(ss)*time.Second +
		time.Duration(mss)*time.Millisecond
}

var markupTag = regexp.MustCompile(`<[^>]*>|\{\\[^}]*\}`)

// stripMarkup drops inline styling tags that some tracks embed in cue text.
func stripMarkup(line string) string {
	return strings.TrimSpace(markupTag.ReplaceAllString(line, ""))
}
