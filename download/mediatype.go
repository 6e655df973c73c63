package download

import (
	"mime"
	"net/url"
	"path"
	"strings"
)

// DefaultMediaType is used when neither the response nor the URL yields
// a media type, so completion stays reachable.
const DefaultMediaType = "mp3"

// MediaTypeSource records where a resolved media type came from.
type MediaTypeSource string

const (
	SourceContentType MediaTypeSource = "content_type"
	SourceURL         MediaTypeSource = "url"
	SourceDefault     MediaTypeSource = "default"
)

var mediaTypeAliases = map[string]string{
	"mpeg":    "mp3",
	"x-mpeg":  "mp3",
	"mpeg3":   "mp3",
	"x-mpeg3": "mp3",
	"mpga":    "mp3",
	"x-m4a":   "m4a",
}

// NormalizeMediaType lowercases t and maps known aliases.
func NormalizeMediaType(t string) string {
	t = strings.ToLower(strings.TrimSpace(t))
	if alias, ok := mediaTypeAliases[t]; ok {
		return alias
	}
	return t
}

// FromContentType extracts the media type from a Content-Type header
// value. Generic binary and malformed values report false.
func FromContentType(header string) (string, bool) {
	if header == "" {
		return "", false
	}
	mt, _, err := mime.ParseMediaType(header)
	if err != nil {
		return "", false
	}
	if mt == "application/octet-stream" || mt == "binary/octet-stream" {
		return "", false
	}
	_, sub, ok := strings.Cut(mt, "/")
	if !ok || sub == "" {
		return "", false
	}
	return NormalizeMediaType(sub), true
}

// FromURL extracts the media type from the path extension of rawURL.
// Query strings and fragments are ignored.
func FromURL(rawURL string) (string, bool) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", false
	}
	ext := strings.TrimPrefix(path.Ext(u.Path), ".")
	if ext == "" {
		return "", false
	}
	for _, c := range ext {
		if !(c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9') {
			return "", false
		}
	}
	return NormalizeMediaType(ext), true
}

// ResolveMediaType resolves the declared content type first and falls
// back to the enclosure URL, then to DefaultMediaType.
func ResolveMediaType(contentType, enclosureURL string) (string, MediaTypeSource) {
	if mt, ok := FromContentType(contentType); ok {
		return mt, SourceContentType
	}
	if mt, ok := FromURL(enclosureURL); ok {
		return mt, SourceURL
	}
	return DefaultMediaType, SourceDefault
}
