package filetype

import (
	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog/log"
)

const pdfMIME = "application/pdf"

// FileTypeInfo contains detected file type information
type FileTypeInfo struct {
	MIMEType    string
	Extension   string
	Supported   bool
	Description string
}

// Detect detects the file type of an uploaded body using magic bytes, not
// the client supplied filename or content type.
func Detect(data []byte) *FileTypeInfo {
	mtype := mimetype.Detect(data)

	info := &FileTypeInfo{
		MIMEType:  mtype.String(),
		Extension: mtype.Extension(),
	}
	if mtype.Is(pdfMIME) {
		info.Supported = true
		info.Description = "PDF document"
	} else {
		info.Description = "Unsupported file type: " + info.MIMEType
	}

	log.Debug().Str("mime", info.MIMEType).Str("ext", info.Extension).Int("bytes", len(data)).Msg("detected file type")
	return info
}

// IsPDF reports whether data starts like a PDF document.
func IsPDF(data []byte) bool { return Detect(data).Supported }
