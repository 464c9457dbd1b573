// CLAUDE:SUMMARY bluemonday policy for preview HTML: text structure only, no scripts, styles, handlers or embeds.
package docpipe

import "github.com/microcosm-cc/bluemonday"

// previewPolicy allows the elements the DOCX converter and the demo
// placeholder emit. Everything else is stripped, element content kept.
func previewPolicy() *bluemonday.Policy {
	p := bluemonday.NewPolicy()
	p.AllowElements(
		"div", "p", "br", "span",
		"h1", "h2", "h3", "h4", "h5", "h6",
		"strong", "b", "em", "i", "u",
		"ul", "ol", "li",
		"table", "thead", "tbody", "tr", "th", "td",
	)
	p.AllowAttrs("class").Matching(bluemonday.SpaceSeparatedTokens).OnElements("div", "p", "span")
	p.AllowAttrs("colspan", "rowspan").Matching(bluemonday.Integer).OnElements("td", "th")
	return p
}

// Sanitize strips anything from an HTML fragment that is not plain document
// structure. Script and style element contents are dropped entirely.
func (p *Pipeline) Sanitize(html string) string {
	return p.policy.Sanitize(html)
}
