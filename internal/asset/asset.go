package asset

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	ErrEmpty    = errors.New("asset is empty")
	ErrNotImage = errors.New("asset is not an image")
)

// Asset is an encoded image as uploaded by a user or returned by the model.
type Asset struct {
	MimeType string
	Data     []byte
}

func (a Asset) Base64() string {
	return base64.StdEncoding.EncodeToString(a.Data)
}

func (a Asset) DataURL() string {
	return "data:" + a.MimeType + ";base64," + a.Base64()
}

// ParseDataURL decodes a base64 data URL. A bare base64 payload is accepted and
// its type is sniffed from the content.
func ParseDataURL(value string) (Asset, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return Asset{}, ErrEmpty
	}

	mimeType := ""
	payload := value
	if strings.HasPrefix(value, "data:") {
		meta, data, ok := strings.Cut(strings.TrimPrefix(value, "data:"), ",")
		if !ok {
			return Asset{}, errors.New("invalid data url")
		}
		if !strings.HasSuffix(meta, ";base64") {
			return Asset{}, errors.New("data url is not base64 encoded")
		}
		mimeType = strings.TrimSpace(strings.TrimSuffix(meta, ";base64"))
		if idx := strings.IndexByte(mimeType, ';'); idx >= 0 {
			mimeType = strings.TrimSpace(mimeType[:idx])
		}
		payload = data
	}

	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(payload))
	if err != nil {
		return Asset{}, fmt.Errorf("decode base64: %w", err)
	}
	return New(mimeType, raw)
}

// New builds an image asset, sniffing the type when mimeType is empty or generic.
func New(mimeType string, data []byte) (Asset, error) {
	if len(data) == 0 {
		return Asset{}, ErrEmpty
	}
	mimeType = DetectMimeType(mimeType, data)
	if !strings.HasPrefix(mimeType, "image/") {
		return Asset{}, ErrNotImage
	}
	return Asset{MimeType: mimeType, Data: data}, nil
}

// DetectMimeType trusts a declared content type unless it is missing or
// generic, then falls back to sniffing.
func DetectMimeType(declared string, data []byte) string {
	mimeType := stripParams(declared)
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = stripParams(http.DetectContentType(data))
	}
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = "image/jpeg"
	}
	return mimeType
}

func stripParams(value string) string {
	value = strings.TrimSpace(value)
	if idx := strings.IndexByte(value, ';'); idx >= 0 {
		value = strings.TrimSpace(value[:idx])
	}
	return strings.ToLower(value)
}
