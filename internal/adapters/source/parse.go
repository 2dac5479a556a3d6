package source

import (
	"io"
	"net/url"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/okian/muster/internal/domain/model"
)

const (
	historyHeading = "game history"
	playersHeading = "players"
)

// ParseEventList reads the game history table: the table.full whose
// grandparent has an h2 "Game history". Links are resolved against base.
func ParseEventList(r io.Reader, base *url.URL) ([]model.EventListing, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, errors.Wrap(err, "parse html")
	}
	table := findFullTable(doc, historyHeading, 2)
	if table == nil {
		return nil, errors.Wrapf(ErrTableNotFound, "%q", historyHeading)
	}

	var out []model.EventListing
	for i, cells := range dataRows(table) {
		if len(cells) < 5 {
			return nil, errors.Wrapf(ErrMalformedPage, "history row %d has %d cells", i, len(cells))
		}
		link := find(cells[0], func(n *html.Node) bool { return n.DataAtom == atom.A })
		href, ok := attr(link, "href")
		if !ok {
			return nil, errors.Wrapf(ErrMalformedPage, "history row %d has no event link", i)
		}
		ref, err := url.Parse(strings.TrimSpace(href))
		if err != nil {
			return nil, errors.Mark(errors.Wrapf(err, "history row %d link", i), ErrMalformedPage)
		}
		players, _, _ := strings.Cut(text(cells[1]), "/")
		count, err := strconv.Atoi(strings.TrimSpace(players))
		if err != nil {
			return nil, errors.Mark(errors.Wrapf(err, "history row %d player count", i), ErrMalformedPage)
		}

		eventURL := ref.String()
		if base != nil {
			eventURL = base.ResolveReference(ref).String()
		}
		out = append(out, model.EventListing{
			EventURL:    eventURL,
			PlayerCount: count,
			Start:       text(cells[3]),
			End:         text(cells[4]),
		})
	}
	return out, nil
}

// ParseParticipants reads the players table: the table.full whose parent has
// an h2 "Players". Column 0 is the name, column 3 holds the presence bar.
func ParseParticipants(r io.Reader) ([]model.ParticipantRow, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, errors.Wrap(err, "parse html")
	}
	table := findFullTable(doc, playersHeading, 1)
	if table == nil {
		return nil, errors.Wrapf(ErrTableNotFound, "%q", playersHeading)
	}

	var out []model.ParticipantRow
	for i, cells := range dataRows(table) {
		if len(cells) < 4 {
			return nil, errors.Wrapf(ErrMalformedPage, "player row %d has %d cells", i, len(cells))
		}
		bar := find(cells[3], func(n *html.Node) bool { return n.DataAtom == atom.Div })
		style, ok := attr(bar, "style")
		if !ok {
			return nil, errors.Wrapf(ErrMalformedPage, "player row %d has no presence bar", i)
		}
		out = append(out, model.ParticipantRow{
			PlayerName: text(cells[0]),
			Directive:  style,
		})
	}
	return out, nil
}

// findFullTable returns the first table with class "full" whose ancestor
// depth levels up has a direct h2 child reading heading.
func findFullTable(doc *html.Node, heading string, depth int) *html.Node {
	return find(doc, func(n *html.Node) bool {
		if n.DataAtom != atom.Table || !hasClass(n, "full") {
			return false
		}
		anc := n
		for i := 0; i < depth && anc != nil; i++ {
			anc = anc.Parent
		}
		if anc == nil {
			return false
		}
		for c := anc.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.ElementNode && c.DataAtom == atom.H2 && strings.EqualFold(text(c), heading) {
				return true
			}
		}
		return false
	})
}

// dataRows returns the td cells of every row without header cells.
func dataRows(table *html.Node) [][]*html.Node {
	var rows [][]*html.Node
	walk(table, func(n *html.Node) {
		if n.DataAtom != atom.Tr {
			return
		}
		if find(n, func(c *html.Node) bool { return c.DataAtom == atom.Th }) != nil {
			return
		}
		var cells []*html.Node
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.ElementNode && c.DataAtom == atom.Td {
				cells = append(cells, c)
			}
		}
		rows = append(rows, cells)
	})
	return rows
}

func walk(n *html.Node, fn func(*html.Node)) {
	if n.Type == html.ElementNode {
		fn(n)
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, fn)
	}
}

// find returns the first element in n's subtree, n included, matching pred.
func find(n *html.Node, pred func(*html.Node) bool) *html.Node {
	if n == nil {
		return nil
	}
	if n.Type == html.ElementNode && pred(n) {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if m := find(c, pred); m != nil {
			return m
		}
	}
	return nil
}

func attr(n *html.Node, key string) (string, bool) {
	if n == nil {
		return "", false
	}
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, key) {
			return a.Val, true
		}
	}
	return "", false
}

func hasClass(n *html.Node, class string) bool {
	v, _ := attr(n, "class")
	for _, c := range strings.Fields(v) {
		if strings.EqualFold(c, class) {
			return true
		}
	}
	return false
}

// text returns the trimmed text content of n.
func text(n *html.Node) string {
	var sb strings.Builder
	var collect func(*html.Node)
	collect = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			collect(c)
		}
	}
	collect(n)
	return strings.TrimSpace(sb.String())
}
