package extract

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

const (
	// MaxPDFPages limits the number of pages decoded from one document.
	MaxPDFPages = 100

	// MaxExtractedTextSize caps the text taken from one document (1MB).
	MaxExtractedTextSize = 1024 * 1024
)

// PDFText extracts the plain text of every page, in order. Pages that fail to
// decode are skipped.
func PDFText(data []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}

	total := reader.NumPage()
	if total == 0 {
		return "", fmt.Errorf("pdf has no pages")
	}
	if total > MaxPDFPages {
		total = MaxPDFPages
	}

	var sb strings.Builder
	for i := 1; i <= total; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		text = strings.TrimSpace(strings.ReplaceAll(text, "\x00", ""))
		if text == "" {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(text)
		if sb.Len() > MaxExtractedTextSize {
			break
		}
	}

	out := sb.String()
	if len(out) > MaxExtractedTextSize {
		out = strings.ToValidUTF8(out[:MaxExtractedTextSize], "")
	}
	return out, nil
}
