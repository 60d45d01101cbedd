package extract

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

var (
	// ErrInvalidPDF is returned for content pdfcpu cannot validate.
	ErrInvalidPDF = errors.New("invalid pdf")
	// ErrNoText is returned when a valid PDF yields no extractable text.
	ErrNoText = errors.New("no text content extracted from pdf")
)

// Inspect validates the document and returns its page count.
func Inspect(data []byte) (int, error) {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed

	if err := api.Validate(bytes.NewReader(data), conf); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidPDF, err)
	}
	pageCount, err := api.PageCount(bytes.NewReader(data), conf)
	if err != nil {
		return 0, fmt.Errorf("%w: could not count pages: %v", ErrInvalidPDF, err)
	}
	return pageCount, nil
}

// PlainText extracts the text layer of every page, separated by blank lines.
func PlainText(data []byte, logger *slog.Logger) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("%w: failed to create PDF reader: %v", ErrInvalidPDF, err)
	}

	totalPage := reader.NumPage()
	var sb strings.Builder
	for pageIndex := 1; pageIndex <= totalPage; pageIndex++ {
		page := reader.Page(pageIndex)
		if page.V.IsNull() {
			logger.Warn("Null page encountered", "page_number", pageIndex)
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("failed to extract text from page %d: %w", pageIndex, err)
		}
		if sb.Len() > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString(text)
	}

	out := strings.TrimSpace(sb.String())
	if out == "" {
		return "", ErrNoText
	}
	logger.Debug("Extracted text from PDF", "total_pages", totalPage, "total_text_length", len(out))
	return out, nil
}
