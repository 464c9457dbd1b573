// CLAUDE:SUMMARY Builds embed URLs for the Microsoft Office and Google Docs remote document viewers.
// Package viewer constructs embed URLs for the two third-party document
// viewers used when no local bytes are available. It never contacts the
// viewers or the document URL.
package viewer

import (
	"net/url"
	"strings"

	"github.com/hazyhaar/ecabinet/document"
)

// Kind selects a remote viewer service.
type Kind string

const (
	Microsoft Kind = "microsoft"
	Google    Kind = "google"
)

const (
	microsoftPrefix = "https://view.officeapps.live.com/op/embed.aspx?src="
	googlePrefix    = "https://docs.google.com/viewer?url="
	googleSuffix    = "&embedded=true"
)

// KindFor picks the viewer for a document type: Office formats go to the
// Microsoft viewer, PDF and everything else to Google.
func KindFor(t document.Type) Kind {
	switch t {
	case document.TypeDoc, document.TypeXls, document.TypePpt:
		return Microsoft
	default:
		return Google
	}
}

// BuildEmbedURL percent-encodes documentURL and substitutes it into the
// template of the chosen viewer. Unknown kinds fall back to Google.
func BuildEmbedURL(kind Kind, documentURL string) string {
	enc := encodeComponent(documentURL)
	if kind == Microsoft {
		return microsoftPrefix + enc
	}
	return googlePrefix + enc + googleSuffix
}

// Hosts returns the viewer origins, for Content-Security-Policy frame-src.
func Hosts() []string {
	return []string{"https://view.officeapps.live.com", "https://docs.google.com"}
}

// componentUnescaper turns QueryEscape output into encodeURIComponent
// output: %20 for spaces, and ! ' ( ) * left as is.
var componentUnescaper = strings.NewReplacer(
	"+", "%20",
	"%21", "!",
	"%27", "'",
	"%28", "(",
	"%29", ")",
	"%2A", "*",
)

// encodeComponent escapes s for use as a single query value.
func encodeComponent(s string) string {
	return componentUnescaper.Replace(url.QueryEscape(s))
}
