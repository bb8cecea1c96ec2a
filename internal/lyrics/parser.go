package lyrics

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

var (
	tagRe     = regexp.MustCompile(`\[(\d{1,2}):(\d{2})(?:\.(\d{1,3}))?\]`)
	leadingRe = regexp.MustCompile(`^\s*(?:\[\d{1,2}:\d{2}(?:\.\d{1,3})?\]\s*)+`)
)

// Parse converts LRC text into a Timeline. It never fails: lines without a
// valid time tag are skipped, and an input with no tags yields an empty
// Timeline.
//
// Every time tag on a line produces its own Line carrying the line's text, so
// "[00:01.00][00:02.50]Hello" yields two lines.
func Parse(lrc string) Timeline {
	var result []Line

	for _, raw := range strings.Split(lrc, "\n") {
		line := strings.TrimRight(raw, "\r")
		matches := tagRe.FindAllStringSubmatch(line, -1)
		if len(matches) == 0 {
			continue
		}

		text := strings.TrimSpace(leadingRe.ReplaceAllString(line, ""))
		for _, match := range matches {
			result = append(result, Line{Time: tagSeconds(match), Text: text})
		}
	}

	return NewTimeline(result)
}

// tagSeconds converts a tagRe submatch to seconds. The fraction is read as a
// decimal fraction of a second, so .5, .50 and .500 are all half a second.
func tagSeconds(match []string) float64 {
	min, _ := strconv.Atoi(match[1])
	sec, _ := strconv.Atoi(match[2])
	total := float64(min*60 + sec)

	if frac := match[3]; frac != "" {
		n, _ := strconv.Atoi(frac)
		total += float64(n) / math.Pow10(len(frac))
	}
	return total
}
