package ingestion

import (
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// DocumentFormat enumerates supported document payload formats.
type DocumentFormat string

const (
	// FormatUnknown represents an unsupported or undetected format.
	FormatUnknown DocumentFormat = ""
	// FormatPDF represents PDF documents.
	FormatPDF DocumentFormat = "pdf"
)

// DetectFormat sniffs the payload and falls back to the filename extension
// when data is empty.
func DetectFormat(filename string, data []byte) DocumentFormat {
	if len(data) == 0 {
		if strings.ToLower(filepath.Ext(filename)) == ".pdf" {
			return FormatPDF
		}
		return FormatUnknown
	}
	if mimetype.Detect(data).Is("application/pdf") {
		return FormatPDF
	}
	return FormatUnknown
}
