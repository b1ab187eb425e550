package schedule

import (
	"fmt"
	"strings"
	"time"
)

// Table geometry. The event column width is derived from a ~70 column total
// so the <pre> block survives Telegram's mobile rendering.
const (
	tableHeader    = "Дата     Дн  Время  Событие"
	tableSeparator = "------- ---- ------ ---------------"

	eventColOffset = 20 // "Дата     " + "Дн  " + "Время  "
	tableWidth     = 70

	emptyDayCell = "нет стримов"
)

var htmlEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

func htmlEscape(s string) string { return htmlEscaper.Replace(s) }

// FormatRange renders an inclusive day range as a monospace table wrapped in
// <pre>. Every day in the range gets a row; days without events show a
// placeholder so gaps in the plan are visible at a glance.
func FormatRange(events []Event, start, end time.Time, title string) string {
	m := byDay(events)

	eventW := tableWidth - eventColOffset
	if eventW < 10 {
		eventW = 10
	}

	var b strings.Builder
	b.WriteString(htmlEscape(title))
	b.WriteString("\n<pre>\n")
	b.WriteString(tableHeader)
	b.WriteByte('\n')
	b.WriteString(tableSeparator)
	b.WriteByte('\n')

	pad := strings.Repeat(" ", eventColOffset)
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		day := d.Format("02.01")
		wd := d.Format("Mon")

		dayEvents := append([]Event(nil), m[dateKey(d)]...)
		if len(dayEvents) == 0 {
			fmt.Fprintf(&b, "%-8s %-3s %-5s  %s\n", day, wd, "--", emptyDayCell)
			continue
		}
		sortEvents(dayEvents)
		for _, e := range dayEvents {
			clock := e.Clock
			if clock == "" {
				clock = "--"
			}
			wrapped := wrapWords(htmlEscape(e.Title), eventW)
			fmt.Fprintf(&b, "%-8s %-3s %-5s  %s\n", day, wd, clock, wrapped[0])
			for _, cont := range wrapped[1:] {
				b.WriteString(pad)
				b.WriteString(cont)
				b.WriteByte('\n')
			}
		}
	}
	b.WriteString("</pre>")
	return b.String()
}

// FormatToday renders the plain-text daily digest for one day. Returns ""
// when nothing is planned, which suppresses the digest entirely.
func FormatToday(events []Event, day time.Time) string {
	sameDay := OnDay(events, day)
	if len(sameDay) == 0 {
		return ""
	}

	lines := []string{"<b>Стримы сегодня:</b>"}
	for _, e := range sameDay {
		if e.Clock != "" {
			lines = append(lines, "• <b>"+e.Clock+"</b> — "+htmlEscape(e.Title))
		} else {
			lines = append(lines, "• "+htmlEscape(e.Title))
		}
	}
	lines = append(lines, "", "Залетай на стримчики! 🔥")
	return strings.Join(lines, "\n")
}

// wrapWords breaks s into lines of at most maxw characters on word
// boundaries. Words longer than maxw are cut hard. Widths count runes,
// not bytes: Cyrillic titles take two bytes per character and a byte cut
// would split a rune in half.
func wrapWords(s string, maxw int) []string {
	words := strings.Fields(s)
	if len(words) == 0 {
		return []string{""}
	}

	var lines []string
	var cur []rune
	for _, word := range words {
		w := []rune(word)
		need := len(w)
		if len(cur) > 0 {
			need++ // joining space
		}
		if len(cur)+need <= maxw {
			if len(cur) > 0 {
				cur = append(cur, ' ')
			}
			cur = append(cur, w...)
			continue
		}
		if len(cur) > 0 {
			lines = append(lines, string(cur))
		}
		for len(w) > maxw {
			lines = append(lines, string(w[:maxw]))
			w = w[maxw:]
		}
		cur = append([]rune(nil), w...)
	}
	if len(cur) > 0 {
		lines = append(lines, string(cur))
	}
	return lines
}
