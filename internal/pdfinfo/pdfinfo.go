// Package pdfinfo extracts lightweight metadata from uploaded PDFs.
// Extraction is best-effort: a document the parser cannot read is still a
// valid upload.
package pdfinfo

import (
	"fmt"
	"io"

	"github.com/ledongthuc/pdf"
)

// PageCount returns the number of pages in the PDF, or an error when the
// document cannot be parsed. Callers treat errors as "unknown", never as a
// rejected upload.
func PageCount(r io.ReaderAt, size int64) (n int, err error) {
	// The parser panics on some malformed documents.
	defer func() {
		if rec := recover(); rec != nil {
			n = 0
			err = fmt.Errorf("parse pdf: %v", rec)
		}
	}()
	reader, err := pdf.NewReader(r, size)
	if err != nil {
		return 0, fmt.Errorf("parse pdf: %w", err)
	}
	return reader.NumPage(), nil
}
