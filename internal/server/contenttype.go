package server

import (
	"errors"
	"fmt"
	"mime"
	"net/http"
	"path"
	"regexp"
	"strings"
)

const (
	octetStream = "application/octet-stream"
	sniffLen    = 512
)

var (
	errInvalidContentType = errors.New("invalid content type")
	errContentMismatch    = errors.New("body does not match declared content type")
)

// extensionTypes maps a lower-cased file extension to the Content-Type used
// when serving it. Unknown extensions are served as octet-stream.
var extensionTypes = map[string]string{
	"png":  "image/png",
	"jpeg": "image/jpeg",
	"jpg":  "image/jpg",
	"mp4":  "video/mp4",
}

// contentTypeForName picks the download Content-Type from the text after
// the last dot of name, ignoring case.
func contentTypeForName(name string) string {
	ext := strings.ToLower(strings.TrimPrefix(path.Ext(name), "."))
	if ct, ok := extensionTypes[ext]; ok {
		return ct
	}
	return octetStream
}

var subtypePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9.+-]*$`)

// uploadTarget derives the stored file name ("file.<subtype>") and the bare
// media type from an upload's Content-Type header. Parameters such as
// charset are dropped.
func uploadTarget(header string) (name, mediaType string, err error) {
	if strings.TrimSpace(header) == "" {
		return "", "", fmt.Errorf("%w: missing", errInvalidContentType)
	}
	mediaType, _, err = mime.ParseMediaType(header)
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", errInvalidContentType, err)
	}
	_, subtype, ok := strings.Cut(mediaType, "/")
	if !ok || !subtypePattern.MatchString(subtype) {
		return "", "", fmt.Errorf("%w: subtype %q", errInvalidContentType, subtype)
	}
	return "file." + subtype, mediaType, nil
}

// Sniffed types that carry no signature and so cannot contradict a
// declared type.
var genericSniffs = map[string]bool{
	octetStream:  true,
	"text/plain": true,
	"text/xml":   true,
}

var typeAliases = map[string]string{
	"image/jpg": "image/jpeg",
}

// verifyDeclaredType compares the declared media type against the type
// detected from the first bytes of the body.
func verifyDeclaredType(declared string, head []byte) error {
	sniffed, _, err := mime.ParseMediaType(http.DetectContentType(head))
	if err != nil || genericSniffs[sniffed] {
		return nil
	}
	if alias, ok := typeAliases[declared]; ok {
		declared = alias
	}
	if sniffed != declared {
		return fmt.Errorf("%w: declared %s, detected %s", errContentMismatch, declared, sniffed)
	}
	return nil
}
