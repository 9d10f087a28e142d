package transform

import (
	"encoding/base64"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

const genericContentType = "application/octet-stream"

// DetectContentType returns declared unless it is empty or generic, in which
// case the type is sniffed from data. Parameters such as charset are dropped.
func DetectContentType(declared string, data []byte) string {
	ct := strings.TrimSpace(declared)
	if ct == "" || ct == genericContentType {
		ct = mimetype.Detect(data).String()
	}
	ct, _, _ = strings.Cut(ct, ";")
	return strings.TrimSpace(ct)
}

// DataURI encodes data as an inline data: reference accepted by Replicate.
func DataURI(contentType string, data []byte) string {
	return "data:" + contentType + ";base64," + base64.StdEncoding.EncodeToString(data)
}
