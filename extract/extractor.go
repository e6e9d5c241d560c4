package extract

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode"
)

// Format identifies a supported input format
type Format string

const (
	FormatPDF     Format = "pdf"
	FormatHWPX    Format = "hwpx"
	FormatHTML    Format = "html"
	FormatTXT     Format = "txt"
	FormatUnknown Format = ""
)

// ExtractionError reports that no text could be recovered from a file.
// Tried lists the per-method error messages so the failure is diagnosable.
type ExtractionError struct {
	Reason string
	Tried  []string
}

func (e *ExtractionError) Error() string {
	if len(e.Tried) == 0 {
		return "extraction failed: " + e.Reason
	}
	return fmt.Sprintf("extraction failed: %s (tried: %s)", e.Reason, strings.Join(e.Tried, "; "))
}

// Extractor recovers text from contract files in multiple formats, walking a
// fallback ladder per format until non-empty text is found.
type Extractor struct {
	// OCR tooling is invoked through external binaries; empty values use the
	// defaults on PATH.
	PDFToTextBin string
	PDFToPPMBin  string
	TesseractBin string
}

// NewExtractor creates an extractor with default tool paths
func NewExtractor() *Extractor {
	return &Extractor{
		PDFToTextBin: "pdftotext",
		PDFToPPMBin:  "pdftoppm",
		TesseractBin: "tesseract",
	}
}

// DetectFormat guesses the format from the file extension
func DetectFormat(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		return FormatPDF
	case ".hwpx":
		return FormatHWPX
	case ".html", ".htm":
		return FormatHTML
	case ".txt", ".text":
		return FormatTXT
	default:
		return FormatUnknown
	}
}

type method struct {
	name string
	fn   func(path string) (string, error)
}

// Extract recovers text from the file at path. When formatHint is empty the
// format is detected from the extension. Each method of the ladder is tried
// in order until one yields non-empty text; if all fail, the returned
// ExtractionError carries every method-level error message.
func (e *Extractor) Extract(path string, formatHint Format) (string, error) {
	format := formatHint
	if format == FormatUnknown {
		format = DetectFormat(path)
	}

	var ladder []method
	switch format {
	case FormatPDF:
		ladder = []method{
			{"pdf_text_layer", e.extractPDFNative},
			{"pdftotext", e.extractPDFToText},
			{"ocr", e.extractPDFOCR},
		}
	case FormatHWPX:
		ladder = []method{{"hwpx_xml", extractHWPX}}
	case FormatHTML:
		ladder = []method{{"html_stripper", extractHTML}}
	case FormatTXT:
		ladder = []method{{"plain_text", extractTXT}}
	default:
		return "", &ExtractionError{Reason: fmt.Sprintf("unsupported format %q", filepath.Ext(path))}
	}

	tried := make([]string, 0, len(ladder))
	for _, m := range ladder {
		text, err := m.fn(path)
		if err != nil {
			tried = append(tried, fmt.Sprintf("%s: %v", m.name, err))
			continue
		}
		cleaned := Clean(text)
		if strings.TrimSpace(cleaned) != "" {
			return cleaned, nil
		}
		tried = append(tried, m.name+": empty text")
	}

	return "", &ExtractionError{Reason: "no text recovered", Tried: tried}
}

func extractTXT(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Clean collapses whitespace runs and drops characters outside the allowed
// set (letters, digits, Hangul syllables and basic punctuation). Cleaning
// never empties non-empty input; if it would, the original is returned.
func Clean(text string) string {
	if text == "" {
		return text
	}

	// A whitespace run collapses to a single newline when it contains one,
	// so article headings keep their line starts.
	var b strings.Builder
	b.Grow(len(text))
	pendingSpace := false
	pendingNewline := false
	for _, r := range text {
		switch {
		case unicode.IsSpace(r):
			pendingSpace = true
			if r == '\n' {
				pendingNewline = true
			}
		case allowedRune(r):
			if pendingSpace && b.Len() > 0 {
				if pendingNewline {
					b.WriteRune('\n')
				} else {
					b.WriteRune(' ')
				}
			}
			pendingSpace = false
			pendingNewline = false
			b.WriteRune(r)
		}
	}

	cleaned := strings.TrimSpace(b.String())
	if cleaned == "" {
		return text
	}
	return cleaned
}

func allowedRune(r rune) bool {
	if unicode.IsLetter(r) || unicode.IsDigit(r) {
		return true
	}
	switch r {
	case '.', ',', '(', ')', '%', '-', ':', '/':
		return true
	}
	return false
}
