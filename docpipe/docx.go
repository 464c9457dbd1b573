// CLAUDE:SUMMARY Converts word/document.xml from a DOCX archive into an HTML tree (headings, runs, lists, tables).
package docpipe

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// convertDocx reads word/document.xml from the archive and renders the body
// as an (unsanitized) HTML fragment.
func convertDocx(data []byte, maxXML int64) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("%w: open zip: %v", ErrDecode, err)
	}

	var docFile *zip.File
	for _, f := range zr.File {
		if f.Name == "word/document.xml" {
			docFile = f
			break
		}
	}
	if docFile == nil {
		return "", fmt.Errorf("%w: word/document.xml not found in archive", ErrDecode)
	}

	rc, err := docFile.Open()
	if err != nil {
		return "", fmt.Errorf("%w: open document.xml: %v", ErrDecode, err)
	}
	defer rc.Close()

	root, err := buildDocxTree(rc, maxXML)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	for c := root.FirstChild; c != nil; c = c.NextSibling {
		if err := html.Render(&buf, c); err != nil {
			return "", fmt.Errorf("render html: %w", err)
		}
	}
	return buf.String(), nil
}

// docxRun is the formatting state of the current w:r.
type docxRun struct {
	bold, italic, underline bool
}

// docxPara accumulates one w:p before it is emitted.
type docxPara struct {
	style  string
	isList bool
	nodes  []*html.Node
}

// maxXMLDepth bounds element nesting in document.xml.
const maxXMLDepth = 256

func buildDocxTree(r io.Reader, maxXML int64) (*html.Node, error) {
	root := element(atom.Div)
	containers := []*html.Node{root}
	current := func() *html.Node { return containers[len(containers)-1] }

	var (
		para   *docxPara
		run    docxRun
		inRun  bool
		inRPr  bool
		inText bool
		sawDoc bool
		depth  int
	)

	decoder := xml.NewDecoder(io.LimitReader(r, maxXML))
	for {
		tok, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: document.xml: %v", ErrDecode, err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			depth++
			if depth > maxXMLDepth {
				return nil, fmt.Errorf("%w: XML nesting depth exceeds %d", ErrDecode, maxXMLDepth)
			}
			switch t.Name.Local {
			case "document":
				sawDoc = true
			case "tbl":
				table := element(atom.Table)
				tbody := element(atom.Tbody)
				table.AppendChild(tbody)
				current().AppendChild(table)
				containers = append(containers, tbody)
			case "tr":
				tr := element(atom.Tr)
				current().AppendChild(tr)
				containers = append(containers, tr)
			case "tc":
				td := element(atom.Td)
				current().AppendChild(td)
				containers = append(containers, td)
			case "p":
				para = &docxPara{}
			case "pStyle":
				if para != nil {
					para.style = attrVal(t)
				}
			case "numPr":
				if para != nil {
					para.isList = true
				}
			case "r":
				run = docxRun{}
				inRun = true
			case "rPr":
				inRPr = true
			case "b":
				if inRPr {
					run.bold = toggleOn(t)
				}
			case "i":
				if inRPr {
					run.italic = toggleOn(t)
				}
			case "u":
				if inRPr {
					v := attrVal(t)
					run.underline = v != "none" && v != "0" && v != "false"
				}
			case "t":
				inText = true
			case "tab":
				if para != nil && inRun && !inRPr {
					para.nodes = append(para.nodes, textNode("\t"))
				}
			case "br":
				if para != nil && inRun {
					para.nodes = append(para.nodes, element(atom.Br))
				}
			}

		case xml.CharData:
			if inText && para != nil && len(t) > 0 {
				para.nodes = append(para.nodes, styledText(string(t), run))
			}

		case xml.EndElement:
			depth--
			switch t.Name.Local {
			case "t":
				inText = false
			case "rPr":
				inRPr = false
			case "r":
				inRun = false
			case "p":
				if para != nil {
					emitParagraph(current(), para)
					para = nil
				}
			case "tc", "tr", "tbl":
				if len(containers) > 1 {
					containers = containers[:len(containers)-1]
				}
			}
		}
	}

	if !sawDoc {
		return nil, fmt.Errorf("%w: document.xml has no w:document root", ErrDecode)
	}
	return root, nil
}

// emitParagraph appends p to parent as a heading, list item or paragraph.
// Consecutive list items share one <ul>.
func emitParagraph(parent *html.Node, p *docxPara) {
	if len(p.nodes) == 0 && parent.DataAtom != atom.Td {
		return
	}

	if level := docxHeadingLevel(p.style); level > 0 {
		h := element(headingAtoms[level-1])
		appendAll(h, p.nodes)
		parent.AppendChild(h)
		return
	}

	if p.isList || strings.EqualFold(p.style, "ListParagraph") {
		list := parent.LastChild
		if list == nil || list.DataAtom != atom.Ul {
			list = element(atom.Ul)
			parent.AppendChild(list)
		}
		li := element(atom.Li)
		appendAll(li, p.nodes)
		list.AppendChild(li)
		return
	}

	para := element(atom.P)
	appendAll(para, p.nodes)
	parent.AppendChild(para)
}

var headingAtoms = []atom.Atom{atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6}

// docxHeadingLevel extracts the heading level from a paragraph style name.
// e.g. "Heading1" → 1, "Heading2" → 2, "Title" → 1, etc.
func docxHeadingLevel(style string) int {
	lower := strings.ToLower(style)
	switch lower {
	case "title":
		return 1
	case "subtitle":
		return 2
	}

	// "Heading1", "Titre1", "Überschrift1", "Tiêu đề 1"...
	for _, prefix := range []string{"heading", "titre", "überschrift", "tiêuđề"} {
		rest, ok := strings.CutPrefix(strings.ReplaceAll(lower, " ", ""), prefix)
		if ok && len(rest) == 1 && rest[0] >= '1' && rest[0] <= '6' {
			return int(rest[0] - '0')
		}
	}
	return 0
}

// styledText wraps s in <strong>/<em>/<u> according to the run formatting.
func styledText(s string, run docxRun) *html.Node {
	n := textNode(s)
	if run.underline {
		n = wrap(atom.U, n)
	}
	if run.italic {
		n = wrap(atom.Em, n)
	}
	if run.bold {
		n = wrap(atom.Strong, n)
	}
	return n
}

// toggleOn reads a w:b / w:i style toggle: present means on unless w:val says otherwise.
func toggleOn(t xml.StartElement) bool {
	switch attrVal(t) {
	case "0", "false", "off":
		return false
	}
	return true
}

func attrVal(t xml.StartElement) string {
	for _, a := range t.Attr {
		if a.Name.Local == "val" {
			return a.Value
		}
	}
	return ""
}

func element(a atom.Atom) *html.Node {
	return &html.Node{Type: html.ElementNode, DataAtom: a, Data: a.String()}
}

func textNode(s string) *html.Node {
	return &html.Node{Type: html.TextNode, Data: s}
}

func wrap(a atom.Atom, child *html.Node) *html.Node {
	n := element(a)
	n.AppendChild(child)
	return n
}

func appendAll(parent *html.Node, nodes []*html.Node) {
	for _, n := range nodes {
		parent.AppendChild(n)
	}
}
