package extract

import (
	"archive/zip"
	"encoding/xml"
	"fmt"
	"strings"
)

// extractHWPX pulls the text runs out of an HWPX document. HWPX is a zip
// container; body sections live under Contents/section*.xml with text in
// <hp:t> elements.
func extractHWPX(path string) (string, error) {
	r, err := zip.OpenReader(path)
	if err != nil {
		return "", fmt.Errorf("not a valid hwpx container: %w", err)
	}
	defer r.Close()

	var b strings.Builder
	found := false
	for _, f := range r.File {
		if !strings.HasPrefix(f.Name, "Contents/section") || !strings.HasSuffix(f.Name, ".xml") {
			continue
		}
		found = true
		rc, err := f.Open()
		if err != nil {
			return "", err
		}
		text, err := hwpxSectionText(rc)
		rc.Close()
		if err != nil {
			return "", err
		}
		b.WriteString(text)
	}

	if !found {
		return "", fmt.Errorf("no body sections found")
	}
	return b.String(), nil
}

func hwpxSectionText(r interface{ Read([]byte) (int, error) }) (string, error) {
	dec := xml.NewDecoder(r)
	var b strings.Builder
	inText := false
	for {
		tok, err := dec.Token()
		if err != nil {
			break
		}
		switch t := tok.(type) {
		case xml.StartElement:
			// hp:t carries text runs; hp:p is a paragraph boundary
			if t.Name.Local == "t" {
				inText = true
			}
		case xml.EndElement:
			if t.Name.Local == "t" {
				inText = false
			}
			if t.Name.Local == "p" {
				b.WriteString("\n")
			}
		case xml.CharData:
			if inText {
				b.Write(t)
			}
		}
	}
	return b.String(), nil
}
