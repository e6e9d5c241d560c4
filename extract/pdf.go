package extract

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
)

// extractPDFNative reads the embedded text layer of a PDF
func (e *Extractor) extractPDFNative(path string) (string, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	var b strings.Builder
	for pageNum := 1; pageNum <= r.NumPage(); pageNum++ {
		page := r.Page(pageNum)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		b.WriteString(text)
		b.WriteString("\n")
	}
	return b.String(), nil
}

// extractPDFToText shells out to the poppler pdftotext tool, which handles
// encodings the native reader chokes on
func (e *Extractor) extractPDFToText(path string) (string, error) {
	out, err := exec.Command(e.PDFToTextBin, "-layout", "-enc", "UTF-8", path, "-").Output()
	if err != nil {
		return "", fmt.Errorf("pdftotext: %w", err)
	}
	return string(out), nil
}

// extractPDFOCR rasters the PDF and runs tesseract with Korean + English
// language packs. Slow; last rung of the ladder.
func (e *Extractor) extractPDFOCR(path string) (string, error) {
	tmpDir, err := os.MkdirTemp("", "laborlens-ocr-*")
	if err != nil {
		return "", err
	}
	defer os.RemoveAll(tmpDir)

	prefix := filepath.Join(tmpDir, "page")
	if err := exec.Command(e.PDFToPPMBin, "-png", "-r", "300", path, prefix).Run(); err != nil {
		return "", fmt.Errorf("pdftoppm: %w", err)
	}

	pages, err := filepath.Glob(prefix + "*.png")
	if err != nil || len(pages) == 0 {
		return "", fmt.Errorf("no pages rastered")
	}

	var b strings.Builder
	for _, page := range pages {
		out, err := exec.Command(e.TesseractBin, page, "stdout", "-l", "kor+eng").Output()
		if err != nil {
			return "", fmt.Errorf("tesseract: %w", err)
		}
		b.Write(out)
		b.WriteString("\n")
	}
	return b.String(), nil
}
