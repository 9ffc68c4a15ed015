package extract

import (
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
)

const maxSnapshotLines = 120

// panelTextLines converts the panel markup to markdown and splits it into
// trimmed lines, so snapshots read the way the panel renders rather than
// as raw HTML.
func panelTextLines(doc *goquery.Document) []string {
	var text string
	if html, err := doc.Html(); err == nil {
		mdConverter := md.NewConverter("", true, nil)
		if converted, err := mdConverter.ConvertString(html); err == nil {
			text = converted
		}
	}
	if text == "" {
		text = doc.Selection.Text()
	}

	var lines []string
	for _, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(whitespaceRegex.ReplaceAllString(raw, " "))
		if line == "" {
			continue
		}
		lines = append(lines, line)
		if len(lines) >= maxSnapshotLines {
			break
		}
	}
	return lines
}
