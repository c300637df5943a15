package scrape

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/KaramelBytes/analyst/internal/analysis"
)

// ErrNoTable is returned when a page holds no usable table.
var ErrNoTable = errors.New("no table found")

// minFallbackRows is how many rows an unclassed table needs before it is
// accepted in place of a missing class match.
const minFallbackRows = 10

// ExtractTable parses an HTML document and returns the first table whose
// class list contains class. Without a match, the first table with more than
// ten rows is used. Reference marks such as "[1]" are stripped from cells and
// row/col spans are expanded so every row has the header's width.
func ExtractTable(doc []byte, class string) (*analysis.Table, error) {
	root, err := html.Parse(bytes.NewReader(doc))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	var tables []*html.Node
	walk(root, func(n *html.Node) bool {
		if n.Type == html.ElementNode && n.DataAtom == atom.Table {
			tables = append(tables, n)
			return false
		}
		return true
	})
	if len(tables) == 0 {
		return nil, ErrNoTable
	}
	var pick *html.Node
	if class != "" {
		for _, t := range tables {
			if hasClass(t, class) {
				pick = t
				break
			}
		}
	}
	if pick == nil {
		for _, t := range tables {
			if len(rowsOf(t)) > minFallbackRows {
				pick = t
				break
			}
		}
	}
	if pick == nil {
		return nil, ErrNoTable
	}
	grid := expand(rowsOf(pick))
	if len(grid) == 0 {
		return nil, ErrNoTable
	}
	name := class
	if c := caption(pick); c != "" {
		name = c
	}
	tbl := &analysis.Table{Name: name, Header: grid[0]}
	for _, row := range grid[1:] {
		if allEmpty(row) {
			continue
		}
		tbl.Append(row)
	}
	return tbl, nil
}

type cell struct {
	text    string
	rowspan int
	colspan int
}

// rowsOf returns the rows of t, not descending into nested tables.
func rowsOf(t *html.Node) [][]cell {
	var rows [][]cell
	walk(t, func(n *html.Node) bool {
		if n != t && n.Type == html.ElementNode && n.DataAtom == atom.Table {
			return false
		}
		if n.Type == html.ElementNode && n.DataAtom == atom.Tr {
			var row []cell
			for c := n.FirstChild; c != nil; c = c.NextSibling {
				if c.Type != html.ElementNode || (c.DataAtom != atom.Td && c.DataAtom != atom.Th) {
					continue
				}
				row = append(row, cell{
					text:    analysis.StripRefs(textOf(c)),
					rowspan: spanAttr(c, "rowspan"),
					colspan: spanAttr(c, "colspan"),
				})
			}
			rows = append(rows, row)
			return false
		}
		return true
	})
	return rows
}

// expand lays cells out on a grid, copying spanned cells into every slot
// they cover.
func expand(rows [][]cell) [][]string {
	type carry struct {
		text string
		left int
	}
	var pending []carry
	out := make([][]string, 0, len(rows))
	for _, row := range rows {
		var line []string
		col := 0
		next := 0
		fill := func() {
			for col < len(pending) && pending[col].left > 0 {
				line = append(line, pending[col].text)
				pending[col].left--
				col++
			}
		}
		fill()
		for next < len(row) {
			c := row[next]
			next++
			for k := 0; k < c.colspan; k++ {
				line = append(line, c.text)
				for len(pending) <= col {
					pending = append(pending, carry{})
				}
				pending[col] = carry{text: c.text, left: c.rowspan - 1}
				col++
			}
			fill()
		}
		fill()
		out = append(out, line)
	}
	return out
}

func walk(n *html.Node, visit func(*html.Node) bool) {
	if !visit(n) {
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, visit)
	}
}

func textOf(n *html.Node) string {
	var b strings.Builder
	walk(n, func(c *html.Node) bool {
		switch c.Type {
		case html.TextNode:
			b.WriteString(c.Data)
			b.WriteByte(' ')
		case html.ElementNode:
			if c.DataAtom == atom.Style || c.DataAtom == atom.Script {
				return false
			}
			if strings.Contains(strings.ReplaceAll(attr(c, "style"), " ", ""), "display:none") {
				return false
			}
			if c.DataAtom == atom.Br {
				b.WriteByte(' ')
			}
		}
		return true
	})
	return b.String()
}

func caption(t *html.Node) string {
	for c := t.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && c.DataAtom == atom.Caption {
			return analysis.StripRefs(textOf(c))
		}
	}
	return ""
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func hasClass(n *html.Node, class string) bool {
	for _, c := range strings.Fields(attr(n, "class")) {
		if c == class {
			return true
		}
	}
	return false
}

func spanAttr(n *html.Node, key string) int {
	v, err := strconv.Atoi(strings.TrimSpace(attr(n, key)))
	if err != nil || v < 1 {
		return 1
	}
	// browsers clamp absurd spans too
	if v > 1000 {
		return 1000
	}
	return v
}

func allEmpty(row []string) bool {
	for _, c := range row {
		if c != "" {
			return false
		}
	}
	return true
}
