// CLAUDE:SUMMARY Test fixtures: minimal multi-page text PDFs and DOCX archives built in memory.
// Package docpipetest builds small, valid document binaries for tests.
package docpipetest

import (
	"archive/zip"
	"bytes"
	"slices"
	"strconv"
	"strings"
)

// PDF returns a US Letter (612x792 pt) PDF with one page per text, each
// page drawing its text in Helvetica.
func PDF(pages ...string) []byte {
	return SizedPDF(612, 792, pages...)
}

// SizedPDF is PDF with an explicit MediaBox size in points.
func SizedPDF(width, height int, pages ...string) []byte {
	if len(pages) == 0 {
		pages = []string{""}
	}

	// Objects: 1 catalog, 2 page tree, 3 font, then page/content pairs.
	n := 3 + 2*len(pages)
	offsets := make([]int, n+1)

	var b strings.Builder
	b.WriteString("%PDF-1.4\n")

	kids := make([]string, len(pages))
	for i := range pages {
		kids[i] = strconv.Itoa(4+2*i) + " 0 R"
	}

	offsets[1] = b.Len()
	b.WriteString("1 0 obj\n<< /Type /Catalog /Pages 2 0 R >>\nendobj\n")

	offsets[2] = b.Len()
	b.WriteString("2 0 obj\n<< /Type /Pages /Kids [" + strings.Join(kids, " ") + "] /Count " + strconv.Itoa(len(pages)) + " >>\nendobj\n")

	offsets[3] = b.Len()
	b.WriteString("3 0 obj\n<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica >>\nendobj\n")

	box := "[0 0 " + strconv.Itoa(width) + " " + strconv.Itoa(height) + "]"
	for i, text := range pages {
		pageObj, contentObj := 4+2*i, 5+2*i

		offsets[pageObj] = b.Len()
		b.WriteString(strconv.Itoa(pageObj) + " 0 obj\n<< /Type /Page /Parent 2 0 R /MediaBox " + box +
			" /Contents " + strconv.Itoa(contentObj) + " 0 R /Resources << /Font << /F1 3 0 R >> >> >>\nendobj\n")

		stream := "BT\n/F1 12 Tf\n72 " + strconv.Itoa(height-72) + " Td\n(" + escape(text) + ") Tj\nET"
		offsets[contentObj] = b.Len()
		b.WriteString(strconv.Itoa(contentObj) + " 0 obj\n<< /Length " + strconv.Itoa(len(stream)) + " >>\nstream\n")
		b.WriteString(stream)
		b.WriteString("\nendstream\nendobj\n")
	}

	xrefOffset := b.Len()
	b.WriteString("xref\n0 " + strconv.Itoa(n+1) + "\n")
	b.WriteString("0000000000 65535 f \n")
	for i := 1; i <= n; i++ {
		b.WriteString(padOffset(offsets[i]))
		b.WriteString(" 00000 n \n")
	}
	b.WriteString("trailer\n<< /Size " + strconv.Itoa(n+1) + " /Root 1 0 R >>\nstartxref\n")
	b.WriteString(strconv.Itoa(xrefOffset))
	b.WriteString("\n%%EOF\n")

	return []byte(b.String())
}

// Corrupt returns bytes that look like the start of a PDF but cannot be parsed.
func Corrupt() []byte {
	return []byte("%PDF-1.4\n1 0 obj\n<< /Type /Catalog /Pages 2 0 R\ngarbage without xref")
}

// Docx returns a DOCX archive whose word/document.xml wraps body (WordprocessingML
// paragraphs and tables) in a w:document/w:body.
func Docx(body string) []byte {
	return Zip(map[string]string{
		"[Content_Types].xml": `<?xml version="1.0" encoding="UTF-8"?><Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types"></Types>`,
		"word/document.xml": `<?xml version="1.0" encoding="UTF-8"?>` +
			`<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>` +
			body + `</w:body></w:document>`,
	})
}

// Para is a plain w:p with a single run of text.
func Para(text string) string {
	return "<w:p><w:r><w:t>" + xmlEscape(text) + "</w:t></w:r></w:p>"
}

// Heading is a w:p with a HeadingN paragraph style.
func Heading(level int, text string) string {
	return `<w:p><w:pPr><w:pStyle w:val="Heading` + strconv.Itoa(level) + `"/></w:pPr><w:r><w:t>` + xmlEscape(text) + "</w:t></w:r></w:p>"
}

// Zip builds an archive from name/content pairs. Entries are written in
// sorted order so output is stable.
func Zip(files map[string]string) []byte {
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	slices.Sort(names)

	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for _, name := range names {
		fw, err := w.Create(name)
		if err != nil {
			panic(err)
		}
		if _, err := fw.Write([]byte(files[name])); err != nil {
			panic(err)
		}
	}
	if err := w.Close(); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

func escape(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, "(", `\(`)
	return strings.ReplaceAll(s, ")", `\)`)
}

func xmlEscape(s string) string {
	r := strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")
	return r.Replace(s)
}

func padOffset(n int) string {
	s := strconv.Itoa(n)
	for len(s) < 10 {
		s = "0" + s
	}
	return s
}
