// CLAUDE:SUMMARY Canned sample-content HTML shown for demonstration documents that have no real file.
package docpipe

import (
	"bytes"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// DemoTitle derives a display title from a file name: underscores become
// spaces and the last extension is dropped.
func DemoTitle(name string) string {
	title := strings.ReplaceAll(name, "_", " ")
	if i := strings.LastIndexByte(title, '.'); i > 0 && !strings.ContainsRune(title[i+1:], '/') && i < len(title)-1 {
		title = title[:i]
	}
	return title
}

var demoParagraphs = []string{
	"Lorem ipsum dolor sit amet, consectetur adipiscing elit. Sed do eiusmod tempor incididunt ut labore et dolore magna aliqua. Ut enim ad minim veniam, quis nostrud exercitation ullamco laboris nisi ut aliquip ex ea commodo consequat.",
	"Sed ut perspiciatis unde omnis iste natus error sit voluptatem accusantium doloremque laudantium, totam rem aperiam, eaque ipsa quae ab illo inventore veritatis et quasi architecto beatae vitae dicta sunt explicabo.",
	"Neque porro quisquam est, qui dolorem ipsum quia dolor sit amet, consectetur, adipisci velit, sed quia non numquam eius modi tempora incidunt ut labore et dolore magnam aliquam quaerat voluptatem.",
}

var demoItems = []string{
	"Nemo enim ipsam voluptatem quia voluptas sit aspernatur aut odit aut fugit.",
	"Sed quia consequuntur magni dolores eos qui ratione voluptatem sequi nesciunt.",
	"Ut enim ad minima veniam, quis nostrum exercitationem ullam corporis suscipit laboriosam.",
}

// DemoHTML renders the placeholder page for a demonstration document.
// The output depends only on name and updatedAt.
func DemoHTML(name, updatedAt string) string {
	root := element(atom.Div)
	root.Attr = []html.Attribute{{Key: "class", Val: "demo-document"}}

	root.AppendChild(wrap(atom.H1, textNode(DemoTitle(name))))
	root.AppendChild(wrap(atom.P, textNode("Created by Admin System on "+updatedAt)))

	notice := element(atom.Div)
	notice.Attr = []html.Attribute{{Key: "class", Val: "demo-notice"}}
	notice.AppendChild(wrap(atom.P, wrap(atom.Strong, textNode("Sample content"))))
	hint := element(atom.P)
	hint.AppendChild(textNode("This is a built-in sample document with no real file. "))
	hint.AppendChild(wrap(atom.Strong, textNode("Upload from your computer")))
	hint.AppendChild(textNode(" to preview actual PDF and DOCX content."))
	notice.AppendChild(hint)
	root.AppendChild(notice)

	root.AppendChild(wrap(atom.P, textNode(demoParagraphs[0])))
	root.AppendChild(wrap(atom.H2, textNode("1. Main content")))
	root.AppendChild(wrap(atom.P, textNode(demoParagraphs[1])))
	root.AppendChild(wrap(atom.P, textNode(demoParagraphs[2])))

	list := element(atom.Ul)
	for _, item := range demoItems {
		list.AppendChild(wrap(atom.Li, textNode(item)))
	}
	root.AppendChild(list)

	root.AppendChild(wrap(atom.P, textNode("Page 1 / Demo")))

	var buf bytes.Buffer
	_ = html.Render(&buf, root)
	return buf.String()
}
