// Package schedule turns the raw task list into per-day stream plans and
// renders them for Telegram.
//
// Conventions encoded here: the task due date carries the stream day, the
// task title optionally carries a "HH:MM" time of day, and @mentions in
// titles are operator notes that must not reach subscribers.
package schedule

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"herald/internal/gtasks"
)

// untitledEvent replaces titles that are empty after cleaning.
const untitledEvent = "Без названия"

// untimedSortKey sorts events without a time of day after all timed ones.
const untimedSortKey = "99:99"

var (
	clockRe   = regexp.MustCompile(`(^|\s)(\d{1,2}):(\d{2})\b`)
	mentionRe = regexp.MustCompile(`@\w+`)
	spacesRe  = regexp.MustCompile(`\s{2,}`)
)

// Event is one planned stream on a specific local day.
type Event struct {
	Day   time.Time // midnight in the local zone
	Clock string    // "HH:MM", empty when the title has no time
	Title string    // cleaned, ready for display (unescaped)
}

func (e Event) sortKey() string {
	if e.Clock == "" {
		return untimedSortKey
	}
	return e.Clock
}

// ExtractClock finds the first valid "HH:MM" token in a title and returns it
// together with the cleaned remainder. Tokens with out-of-range components
// (e.g. "25:99") stay part of the title.
func ExtractClock(title string) (clock, cleaned string) {
	for _, m := range clockRe.FindAllStringSubmatchIndex(title, -1) {
		hh := title[m[4]:m[5]]
		mm := title[m[6]:m[7]]
		h, _ := strconv.Atoi(hh)
		min, _ := strconv.Atoi(mm)
		if h > 23 || min > 59 {
			continue
		}
		rest := strings.TrimSpace(title[:m[0]]) + " " + strings.TrimSpace(title[m[1]:])
		return hh + ":" + mm, CleanTitle(strings.TrimSpace(rest))
	}
	return "", CleanTitle(title)
}

// CleanTitle strips @mentions, collapses whitespace and trims leftover
// dashes. An empty result falls back to a placeholder.
func CleanTitle(title string) string {
	t := mentionRe.ReplaceAllString(title, "")
	t = spacesRe.ReplaceAllString(t, " ")
	t = strings.Trim(t, " —-")
	t = strings.TrimSpace(t)
	if t == "" {
		return untitledEvent
	}
	return t
}

// DueToLocalDate converts a task's due value to a local calendar day.
// Google Tasks emits RFC 3339 with a zero time part; a bare "YYYY-MM-DD"
// prefix is accepted as fallback.
func DueToLocalDate(due string, loc *time.Location) (time.Time, bool) {
	due = strings.TrimSpace(due)
	if due == "" {
		return time.Time{}, false
	}
	if ts, err := time.Parse(time.RFC3339, due); err == nil {
		local := ts.In(loc)
		return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc), true
	}
	if len(due) >= 10 {
		if d, err := time.ParseInLocation("2006-01-02", due[:10], loc); err == nil {
			return d, true
		}
	}
	return time.Time{}, false
}

// EventsFrom projects tasks into events. Tasks without a usable due date are
// dropped: they carry no day and cannot be placed on any view.
func EventsFrom(items []gtasks.Item, loc *time.Location) []Event {
	var events []Event
	for _, it := range items {
		day, ok := DueToLocalDate(it.Due, loc)
		if !ok {
			continue
		}
		clock, title := ExtractClock(it.Title)
		events = append(events, Event{Day: day, Clock: clock, Title: title})
	}
	return events
}

// sortEvents orders events by time of day, untimed last. Stable so that
// same-time events keep list order.
func sortEvents(events []Event) {
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].sortKey() < events[j].sortKey()
	})
}

func dateKey(d time.Time) string { return d.Format("2006-01-02") }

// byDay groups events by local day.
func byDay(events []Event) map[string][]Event {
	m := make(map[string][]Event)
	for _, e := range events {
		k := dateKey(e.Day)
		m[k] = append(m[k], e)
	}
	return m
}

// OnDay filters events scheduled on the given local day, sorted by time.
func OnDay(events []Event, day time.Time) []Event {
	var out []Event
	k := dateKey(day)
	for _, e := range events {
		if dateKey(e.Day) == k {
			out = append(out, e)
		}
	}
	sortEvents(out)
	return out
}

// Week is an inclusive day range inside one month.
type Week struct {
	Start time.Time
	End   time.Time
}

// MonthWeeks splits a month into consecutive 7-day chunks starting at the
// 1st; the final chunk is clipped to the last day of the month.
func MonthWeeks(year int, month time.Month, loc *time.Location) []Week {
	first := time.Date(year, month, 1, 0, 0, 0, 0, loc)
	last := first.AddDate(0, 1, -1)

	var weeks []Week
	for d := first; !d.After(last); d = d.AddDate(0, 0, 7) {
		end := d.AddDate(0, 0, 6)
		if end.After(last) {
			end = last
		}
		weeks = append(weeks, Week{Start: d, End: end})
	}
	return weeks
}

var ruMonths = [...]string{
	"", "Январь", "Февраль", "Март", "Апрель", "Май", "Июнь",
	"Июль", "Август", "Сентябрь", "Октябрь", "Ноябрь", "Декабрь",
}

// MonthTitle captions one week page of the month view.
func MonthTitle(year int, month time.Month, idx, total int) string {
	return "📅 " + ruMonths[month] + " " + strconv.Itoa(year) +
		" — Неделя " + strconv.Itoa(idx+1) + "/" + strconv.Itoa(total)
}

// TodayTitle captions the single-day view.
func TodayTitle(d time.Time) string {
	return "📅 Сегодня — " + d.Format("02.01.2006")
}

// WeekTitle captions the rolling 7-day view.
func WeekTitle(start, end time.Time) string {
	return "📅 Неделя — " + start.Format("02.01") + "–" + end.Format("02.01")
}
