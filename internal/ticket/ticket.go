// Package ticket renders orders as fixed-width kitchen printer tickets.
package ticket

import (
	"fmt"
	"io"
	"strings"
	"time"
	"unicode/utf8"

	"kds/internal/models"
)

const (
	DefaultWidth = 42
	minWidth     = 24
	shortIDLen   = 6
)

type Options struct {
	Width    int
	Location *time.Location
}

// Render returns the ticket text. Lines never exceed the configured width.
func Render(order models.Order, opts Options) string {
	var b strings.Builder
	_ = Write(&b, order, opts)
	return b.String()
}

func Write(w io.Writer, order models.Order, opts Options) error {
	width := opts.Width
	if width <= 0 {
		width = DefaultWidth
	}
	if width < minWidth {
		width = minWidth
	}
	loc := opts.Location
	if loc == nil {
		loc = time.Local
	}

	t := &printer{width: width}
	t.rule('=')
	t.pair("ORDER #"+ShortID(order.ID), strings.ToUpper(string(order.Status)))
	table := "Takeaway"
	if order.Table != nil && order.Table.Number > 0 {
		table = fmt.Sprintf("Table %d", order.Table.Number)
	}
	placed := ""
	if !order.CreatedAt.IsZero() {
		placed = order.CreatedAt.In(loc).Format("15:04")
	}
	t.pair(table, placed)
	if order.Customer != nil && order.Customer.Name != "" {
		t.wrap("Customer: "+order.Customer.Name, 0)
	}
	t.rule('-')

	for _, item := range order.Items {
		t.pair(fmt.Sprintf("%d x %s", item.Quantity, item.Product.DisplayName()), item.LineTotal().StringFixed(2))
		for _, selected := range item.SelectedAddons {
			addon := "+ " + selected.Addon.Name
			if selected.SubAddon != nil && selected.SubAddon.Name != "" {
				addon += " (" + selected.SubAddon.Name + ")"
			}
			t.wrap(addon, 4)
		}
		if note := strings.TrimSpace(item.SpecialInstructions); note != "" {
			t.wrap("! "+note, 4)
		}
	}

	if note := strings.TrimSpace(order.SpecialInstructions); note != "" {
		t.rule('-')
		t.wrap("NOTE: "+note, 0)
	}
	t.rule('-')
	t.pair("TOTAL", order.TotalAmount.StringFixed(2))
	t.rule('=')

	_, err := io.WriteString(w, t.b.String())
	return err
}

// ShortID is the tail of the order id kitchens call out loud.
func ShortID(id string) string {
	if utf8.RuneCountInString(id) <= shortIDLen {
		return strings.ToUpper(id)
	}
	runes := []rune(id)
	return strings.ToUpper(string(runes[len(runes)-shortIDLen:]))
}

type printer struct {
	width int
	b     strings.Builder
}

func (p *printer) line(s string) {
	p.b.WriteString(s)
	p.b.WriteByte('\n')
}

func (p *printer) rule(c rune) {
	p.line(strings.Repeat(string(c), p.width))
}

// pair prints left and right aligned to the edges. Left gives way first;
// a right side wider than the ticket is truncated as well.
func (p *printer) pair(left, right string) {
	right = truncate(right, p.width)
	rightLen := utf8.RuneCountInString(right)
	room := p.width - rightLen - 1
	if right == "" {
		room = p.width
	}
	left = truncate(left, room)
	gap := max(p.width-utf8.RuneCountInString(left)-rightLen, 0)
	p.line(left + strings.Repeat(" ", gap) + right)
}

// wrap breaks text on spaces; continuation lines share the indent.
func (p *printer) wrap(text string, indent int) {
	pad := strings.Repeat(" ", indent)
	room := p.width - indent
	current := ""
	for _, word := range strings.Fields(text) {
		for utf8.RuneCountInString(word) > room {
			if current != "" {
				p.line(pad + current)
				current = ""
			}
			runes := []rune(word)
			p.line(pad + string(runes[:room]))
			word = string(runes[room:])
		}
		switch {
		case current == "":
			current = word
		case utf8.RuneCountInString(current)+1+utf8.RuneCountInString(word) <= room:
			current += " " + word
		default:
			p.line(pad + current)
			current = word
		}
	}
	if current != "" {
		p.line(pad + current)
	}
}

func truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	if n == 1 {
		return string(runes[:1])
	}
	return string(runes[:n-1]) + "~"
}
