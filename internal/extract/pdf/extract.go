// Package pdf implements the PdfExtractor described in spec §4.3: PDF bytes
// in, concatenated page text plus {title, author, pdf_pages} out. Grounded
// on original_source's pdf_extractor.py (pymupdf) for the field set and the
// "D:YYYYMMDDhhmmss" creation-date normalization; ledongthuc/pdf is the
// ecosystem substitute — no PDF library exists anywhere in the retrieval
// pack (see DESIGN.md).
package pdf

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/r3co87/iris/internal/model"
)

// Result is the PdfExtractor's output: the text of every page concatenated in
// page order, plus the page-count/title/author/created-date metadata. No form
// feed or other separator is inserted between pages.
type Result struct {
	Text     string
	Metadata model.Metadata
}

// Extract parses raw PDF bytes. Malformed input is the caller's signal to
// classify a browser_error per the error table — Extract just returns the
// wrapped parse error.
func Extract(raw []byte) (Result, error) {
	reader, err := pdf.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return Result{}, fmt.Errorf("open pdf: %w", err)
	}

	pages := reader.NumPage()

	textReader, err := reader.GetPlainText()
	if err != nil {
		return Result{}, fmt.Errorf("extract pdf text: %w", err)
	}
	rawText, err := io.ReadAll(textReader)
	if err != nil {
		return Result{}, fmt.Errorf("read pdf text: %w", err)
	}

	info := reader.Trailer().Key("Info")
	meta := model.Metadata{
		PDFPages:       pages,
		Title:          info.Key("Title").Text(),
		Author:         info.Key("Author").Text(),
		PDFCreatedDate: normalizeCreationDate(info.Key("CreationDate").Text()),
	}

	return Result{
		Text:     strings.TrimSpace(string(rawText)),
		Metadata: meta,
	}, nil
}

// normalizeCreationDate strips the PDF date prefix "D:" that pymupdf and the
// PDF spec both use, leaving "YYYYMMDDhhmmss[...]".
func normalizeCreationDate(raw string) string {
	if strings.HasPrefix(raw, "D:") {
		return raw[2:]
	}
	return raw
}
