package harvest

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// ExtractText returns the visible text of an HTML document: script, style,
// and noscript subtrees removed, whitespace runs collapsed to single spaces.
// An empty result is not an error here; callers decide what emptiness means.
func ExtractText(body []byte) (string, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return "", nil
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}
	doc.Find("script, style, noscript").Remove()

	sel := doc.Find("body")
	var text string
	if sel.Length() > 0 {
		text = sel.Text()
	} else {
		text = doc.Text()
	}
	return strings.Join(strings.Fields(text), " "), nil
}
