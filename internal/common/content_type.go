package common

import "strings"

// ContentType represents the message content variant on the wire.
type ContentType string

const (
	ContentTypeText  ContentType = "text"
	ContentTypeImage ContentType = "image"
	ContentTypeFile  ContentType = "file"
	ContentTypeVoice ContentType = "voice"
)

// String returns the string representation
func (ct ContentType) String() string {
	return string(ct)
}

// IsValid checks if the content type is one of the closed set
func (ct ContentType) IsValid() bool {
	switch ct {
	case ContentTypeText, ContentTypeImage, ContentTypeFile, ContentTypeVoice:
		return true
	}
	return false
}

// IsMedia reports whether the variant carries a media attachment.
func (ct ContentType) IsMedia() bool {
	return ct == ContentTypeImage || ct == ContentTypeFile || ct == ContentTypeVoice
}

// DetectContentType maps an upload MIME type to a message content variant.
func DetectContentType(mimeType string) ContentType {
	lowerMimeType := strings.ToLower(mimeType)
	if strings.HasPrefix(lowerMimeType, "image/") {
		return ContentTypeImage
	}
	if strings.HasPrefix(lowerMimeType, "audio/") {
		return ContentTypeVoice
	}
	return ContentTypeFile // Default fallback
}
