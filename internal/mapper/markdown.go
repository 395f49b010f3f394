// Package mapper translates protocol payloads into persisted row shapes.
// Functions here do no I/O and never fail: missing or malformed optional
// parts produce nil or empty values.
package mapper

import (
	"strconv"
	"strings"
	"unicode/utf16"

	"github.com/blockedby/chanscope/internal/telegram"
)

// RenderMarkdown overlays style markers on ft.Text. Entity offsets count
// UTF-16 code units. Opening markers are emitted in entity order at the span
// start; closing markers are emitted in reverse order at the span end, and
// closes at a position always precede opens at the same position.
func RenderMarkdown(ft telegram.FormattedText) string {
	if len(ft.Entities) == 0 {
		return ft.Text
	}

	units := utf16.Encode([]rune(ft.Text))
	n := len(units)
	opens := make(map[int][]string)
	closes := make(map[int][]string)

	for _, e := range ft.Entities {
		if e.Length <= 0 || e.Offset < 0 || e.Offset >= n {
			continue
		}
		end := e.Offset + e.Length
		if end > n {
			end = n
		}
		openMark, closeMark := markers(e.Type)
		if openMark == "" && closeMark == "" {
			continue
		}
		opens[e.Offset] = append(opens[e.Offset], openMark)
		closes[end] = append([]string{closeMark}, closes[end]...)
	}

	var b strings.Builder
	b.Grow(len(ft.Text) + 8*len(ft.Entities))
	start := 0
	flush := func(upTo int) {
		if upTo > start {
			b.WriteString(string(utf16.Decode(units[start:upTo])))
			start = upTo
		}
	}

	for pos := 0; pos <= n; pos++ {
		c, o := closes[pos], opens[pos]
		if len(c) == 0 && len(o) == 0 {
			continue
		}
		flush(pos)
		for _, m := range c {
			b.WriteString(m)
		}
		for _, m := range o {
			b.WriteString(m)
		}
	}
	flush(n)
	return b.String()
}

func markers(t telegram.TextEntityType) (string, string) {
	switch v := t.(type) {
	case telegram.EntityBold:
		return "**", "**"
	case telegram.EntityItalic:
		return "_", "_"
	case telegram.EntityUnderline:
		return "__", "__"
	case telegram.EntityStrikethrough:
		return "~~", "~~"
	case telegram.EntityCode:
		return "`", "`"
	case telegram.EntityPre:
		return "```" + v.Language + "\n", "\n```"
	case telegram.EntitySpoiler:
		return "||", "||"
	case telegram.EntityTextURL:
		if v.URL == "" {
			return "", ""
		}
		return "[", "](" + v.URL + ")"
	case telegram.EntityMentionName:
		if v.UserID == 0 {
			return "", ""
		}
		return "[", "](tg://user?id=" + strconv.FormatInt(v.UserID, 10) + ")"
	default:
		// plain and unknown entities are already literal text
		return "", ""
	}
}
