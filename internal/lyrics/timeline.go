package lyrics

import "sort"

// LineID identifies a line within one Timeline. It is the line's index and
// means nothing outside the Timeline that produced it.
type LineID int

type Line struct {
	ID   LineID  `json:"id"`
	Time float64 `json:"time"` // 秒
	Text string  `json:"text"` // 空字符串表示间奏
}

// Timeline is an immutable, time-ordered list of lyric lines. The zero value
// is an empty timeline, meaning no lyrics are available.
type Timeline struct {
	lines []Line
}

// NewTimeline stable-sorts lines by time and assigns their IDs. The input
// slice is not modified.
func NewTimeline(lines []Line) Timeline {
	if len(lines) == 0 {
		return Timeline{}
	}
	sorted := make([]Line, len(lines))
	copy(sorted, lines)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Time < sorted[j].Time })
	for i := range sorted {
		sorted[i].ID = LineID(i)
	}
	return Timeline{lines: sorted}
}

func (t Timeline) Len() int { return len(t.lines) }

func (t Timeline) Empty() bool { return len(t.lines) == 0 }

// Lines returns a copy of the timeline's lines.
func (t Timeline) Lines() []Line {
	out := make([]Line, len(t.lines))
	copy(out, t.lines)
	return out
}

func (t Timeline) Line(id LineID) (Line, bool) {
	if id < 0 || int(id) >= len(t.lines) {
		return Line{}, false
	}
	return t.lines[id], true
}

// Resolve returns the line that should be shown at the given playback time:
// the last line whose timestamp is <= at. Before the first timestamp the
// first line is returned. ok is false only for an empty timeline.
func (t Timeline) Resolve(at float64) (id LineID, ok bool) {
	if len(t.lines) == 0 {
		return 0, false
	}

	// 二分查找第一个晚于 at 的行
	i := sort.Search(len(t.lines), func(i int) bool { return t.lines[i].Time > at })
	if i == 0 {
		return t.lines[0].ID, true
	}
	return t.lines[i-1].ID, true
}
