package agenda

import "sort"

// span is a half-open [start, end) interval in minutes of day.
type span struct {
	start MinuteOfDay
	end   MinuteOfDay
}

func (s span) empty() bool { return s.end <= s.start }

func (s span) overlaps(o span) bool { return s.start < o.end && o.start < s.end }

// ResolveDay computes the effective windows for one template on one date.
// exceptions must already be filtered to that date.
//
// Precedence: a HOLIDAY at the template's center empties the day outright.
// MAINTENANCE on the template's room is subtracted from the base window.
// SPECIAL_ATTENTION for the template is applied last: with an explicit
// window (an end, or a start plus duration) it reopens time, including time
// MAINTENANCE blocked inside that window; with only a duration it extends
// the end of the base window.
func ResolveDay(tpl ScheduleTemplate, exceptions []ExceptionalDay) []Window {
	for _, ex := range exceptions {
		if ex.Scope == ScopeHoliday && ex.CenterID == tpl.CenterID {
			return nil
		}
	}

	base := span{tpl.Start, tpl.End}
	if base.empty() {
		return nil
	}

	available := []span{base}
	var blocked []span

	for _, ex := range exceptions {
		if ex.Scope != ScopeMaintenance || ex.RoomID == nil || *ex.RoomID != tpl.RoomID {
			continue
		}
		block := exceptionSpan(ex, base)
		if block.empty() || !block.overlaps(base) {
			continue
		}
		available = subtractAll(available, block)
		blocked = append(blocked, clip(block, base))
	}

	for _, ex := range exceptions {
		if ex.Scope != ScopeSpecialAttention || ex.TemplateID == nil || *ex.TemplateID != tpl.ID {
			continue
		}
		if ex.Start != nil {
			end := *ex.Start
			switch {
			case ex.End != nil:
				end = *ex.End
			case ex.DurationMinutes != nil:
				end = *ex.Start + MinuteOfDay(*ex.DurationMinutes)
			}
			extra := span{*ex.Start, end}
			if extra.empty() {
				continue
			}
			available = merge(append(available, extra))
			blocked = subtractAll(blocked, extra)
		} else if ex.DurationMinutes != nil && *ex.DurationMinutes > 0 {
			extra := span{base.end, base.end + MinuteOfDay(*ex.DurationMinutes)}
			available = merge(append(available, extra))
		}
	}

	windows := make([]Window, 0, len(available)+len(blocked))
	for _, s := range available {
		windows = append(windows, Window{Start: s.start, End: s.end, Available: true})
	}
	for _, s := range blocked {
		windows = append(windows, Window{Start: s.start, End: s.end, Available: false})
	}
	sort.Slice(windows, func(i, j int) bool {
		if windows[i].Start != windows[j].Start {
			return windows[i].Start < windows[j].Start
		}
		return windows[i].End < windows[j].End
	})
	return windows
}

// exceptionSpan resolves the blocked range of a MAINTENANCE exception.
// Missing bounds widen to the base window (a block with no window at all
// covers the whole day for that room).
func exceptionSpan(ex ExceptionalDay, base span) span {
	s := base
	if ex.Start != nil {
		s.start = *ex.Start
	}
	if ex.End != nil {
		s.end = *ex.End
	} else if ex.Start != nil && ex.DurationMinutes != nil {
		s.end = *ex.Start + MinuteOfDay(*ex.DurationMinutes)
	}
	return s
}

func clip(s, bounds span) span {
	if s.start < bounds.start {
		s.start = bounds.start
	}
	if s.end > bounds.end {
		s.end = bounds.end
	}
	return s
}

// subtractAll removes block from every span, splitting where the block falls
// inside a span. Open-interval subtraction: a block covering a span fully
// deletes it.
func subtractAll(spans []span, block span) []span {
	var out []span
	for _, s := range spans {
		if !s.overlaps(block) {
			out = append(out, s)
			continue
		}
		if left := (span{s.start, block.start}); !left.empty() {
			out = append(out, left)
		}
		if right := (span{block.end, s.end}); !right.empty() {
			out = append(out, right)
		}
	}
	return out
}

// merge sorts spans and coalesces overlapping or touching ones.
func merge(spans []span) []span {
	if len(spans) == 0 {
		return nil
	}
	sort.Slice(spans, func(i, j int) bool { return spans[i].start < spans[j].start })

	out := []span{spans[0]}
	for _, s := range spans[1:] {
		last := &out[len(out)-1]
		if s.start <= last.end {
			if s.end > last.end {
				last.end = s.end
			}
			continue
		}
		out = append(out, s)
	}
	return out
}
