// CLAUDE:SUMMARY Converts preview HTML fragments to Markdown for text-only consumers (MCP).
package docpipe

import (
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var stripAll = bluemonday.StrictPolicy()

// Markdown converts an HTML fragment to Markdown. If conversion fails or
// produces empty output, the fragment's plain text is returned.
func (p *Pipeline) Markdown(html string) string {
	if strings.TrimSpace(html) == "" {
		return ""
	}
	result, err := p.mdConverter.ConvertString(html)
	if err != nil || strings.TrimSpace(result) == "" {
		return strings.TrimSpace(stripAll.Sanitize(html))
	}
	return strings.TrimSpace(result)
}
