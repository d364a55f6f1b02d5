package cv

import (
	"bytes"
	"context"
	"mime"
	"strings"

	"resume-matcher/internal/apperr"

	"code.sajari.com/docconv"
)

const pdfMIME = "application/pdf"

// TextExtractor turns PDF bytes into plain text.
type TextExtractor interface {
	ExtractText(ctx context.Context, data []byte) (string, error)
}

// DocconvExtractor shells out to pdftotext through docconv.
type DocconvExtractor struct{}

func NewDocconvExtractor() *DocconvExtractor {
	return &DocconvExtractor{}
}

// ExtractText returns the text of every readable page. Pages that yield
// nothing are dropped; if no page yields text the result is an
// Unprocessable error.
func (DocconvExtractor) ExtractText(ctx context.Context, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	res, err := docconv.Convert(bytes.NewReader(data), pdfMIME, false)
	if err != nil {
		return "", apperr.Wrap(apperr.Unprocessable, "could not extract text from PDF", err)
	}

	text := JoinPages(SplitPages(res.Body))
	if strings.TrimSpace(text) == "" {
		return "", apperr.New(apperr.Unprocessable, "no extractable text found in PDF")
	}
	return text, nil
}

// SplitPages splits pdftotext output on form feeds and drops blank pages.
func SplitPages(body string) []string {
	raw := strings.Split(body, "\f")
	pages := make([]string, 0, len(raw))
	for _, p := range raw {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		pages = append(pages, p)
	}
	return pages
}

func JoinPages(pages []string) string {
	return strings.Join(pages, "\n")
}

// ValidatePDF rejects uploads that are empty or not declared as PDF.
func ValidatePDF(contentType string, data []byte) error {
	if !IsPDF(contentType) {
		return apperr.New(apperr.Validation, "Only PDF files are allowed")
	}
	if len(data) == 0 {
		return apperr.New(apperr.Validation, "Empty file")
	}
	return nil
}

func IsPDF(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mediaType == pdfMIME || mediaType == "application/x-pdf"
}

// Preview returns the first n runes of text.
func Preview(text string, n int) string {
	runes := []rune(text)
	if len(runes) <= n {
		return text
	}
	return string(runes[:n])
}
