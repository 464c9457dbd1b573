// CLAUDE:SUMMARY Limits applied by the docpipe renderers before and while decoding untrusted binaries.
package docpipe

import "log/slog"

// Config bounds what the renderers accept. Every limit rejects the input
// with ErrDecode, which the preview chain treats as "try the next strategy".
type Config struct {
	// MaxFileSize is the largest binary accepted (default: 100 MiB).
	MaxFileSize int64 `json:"max_file_size" yaml:"max_file_size"`

	// MaxPages rejects PDFs with more pages. 0 means no limit.
	MaxPages int `json:"max_pages" yaml:"max_pages"`

	// MaxDocxXML caps the decompressed size of word/document.xml
	// (default: 64 MiB). Zip bombs stop here.
	MaxDocxXML int64 `json:"max_docx_xml" yaml:"max_docx_xml"`

	Logger *slog.Logger `json:"-" yaml:"-"`
}

func (c *Config) defaults() {
	if c.MaxFileSize <= 0 {
		c.MaxFileSize = 100 << 20
	}
	if c.MaxDocxXML <= 0 {
		c.MaxDocxXML = 64 << 20
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}
