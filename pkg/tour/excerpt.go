package tour

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Excerpt reduces a description, which may carry HTML from the authoring
// side, to plain prose capped at maxWords. Used for list views and
// screen reader announcements.
func Excerpt(fragment string, maxWords int) string {
	doc, err := html.Parse(strings.NewReader(fragment))
	if err != nil {
		return truncateWords(fragment, maxWords)
	}

	var b strings.Builder
	collectText(doc, &b)
	return truncateWords(b.String(), maxWords)
}

func collectText(n *html.Node, b *strings.Builder) {
	if n.Type == html.TextNode {
		b.WriteString(n.Data)
		b.WriteByte(' ')
		return
	}
	if n.Type == html.ElementNode {
		// Citations and embedded code carry no prose.
		if n.DataAtom == atom.Sup || n.DataAtom == atom.Style || n.DataAtom == atom.Script {
			return
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(c, b)
	}
}

func truncateWords(s string, maxWords int) string {
	words := strings.Fields(s)
	if maxWords <= 0 || len(words) <= maxWords {
		return strings.Join(words, " ")
	}
	return strings.Join(words[:maxWords], " ") + "..."
}
