// Package content turns raw document bytes into the text-and-images bundle
// the gateway sends to vision providers.
package content

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/billscan/internal/model"
)

// Extraction method tags recorded on the content bundle.
const (
	MethodPDFText     = "pdf_text_only"
	MethodImageVision = "image_vision"
	MethodUnknown     = "unknown"
)

// FromFile reads and extracts content from a document on disk.
func FromFile(path string) (model.Content, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return model.Content{}, eris.Wrapf(err, "content: read %s", path)
	}
	return FromBytes(data, filepath.Base(path))
}

// FromBytes extracts content from document bytes. PDFs yield per-page text
// (no rasterization: page images for PDFs are out of scope here, so vision
// providers receive text context only); other files are treated as a single
// page image with no backup text.
func FromBytes(data []byte, filename string) (model.Content, error) {
	if strings.EqualFold(filepath.Ext(filename), ".pdf") {
		return fromPDF(data, filename)
	}
	return fromImage(data), nil
}

func fromPDF(data []byte, filename string) (model.Content, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return model.Content{}, eris.Wrapf(err, "content: open pdf %s", filename)
	}

	totalPages := reader.NumPage()
	var text strings.Builder
	for i := 1; i <= totalPages; i++ {
		p := reader.Page(i)
		if p.V.IsNull() {
			continue
		}
		pageText, err := p.GetPlainText(nil)
		if err != nil {
			// A single unreadable page degrades the text context, it does
			// not fail the document.
			zap.L().Warn("failed to extract page text",
				zap.String("file", filename),
				zap.Int("page", i),
				zap.Error(err),
			)
			continue
		}
		fmt.Fprintf(&text, "\n--- PAGE %d ---\n%s", i, pageText)
	}

	return model.Content{
		Text:             text.String(),
		PageCount:        totalPages,
		ExtractionMethod: MethodPDFText,
	}, nil
}

func fromImage(data []byte) model.Content {
	return model.Content{
		PageCount:        1,
		Images:           []string{base64.StdEncoding.EncodeToString(data)},
		ExtractionMethod: MethodImageVision,
	}
}
