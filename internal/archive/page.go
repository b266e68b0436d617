package archive

import (
	"fmt"
	"mime"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
)

// Page is one image in final reading order.
type Page struct {
	Data []byte
	// Ext is the entry extension including the dot, e.g. ".png".
	Ext string
}

var imageExtensions = map[string]string{
	".jpg":  ".jpg",
	".jpeg": ".jpeg",
	".png":  ".png",
	".gif":  ".gif",
	".webp": ".webp",
	".avif": ".avif",
	".bmp":  ".bmp",
}

var contentTypeExtensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/jpg":  ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
	"image/avif": ".avif",
	"image/bmp":  ".bmp",
}

// ExtensionFor picks the entry extension for a downloaded page: the URL path
// extension when it is a known image type, then the Content-Type header, then
// the sniffed body type, then ".jpg".
func ExtensionFor(pageURL, contentType string, data []byte) string {
	if parsed, err := url.Parse(pageURL); err == nil {
		if ext, ok := imageExtensions[strings.ToLower(path.Ext(parsed.Path))]; ok {
			return ext
		}
	}
	if ext := extensionForContentType(contentType); ext != "" {
		return ext
	}
	if len(data) > 0 {
		if ext := extensionForContentType(http.DetectContentType(data)); ext != "" {
			return ext
		}
	}
	return ".jpg"
}

func extensionForContentType(contentType string) string {
	if contentType == "" {
		return ""
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return ""
	}
	return contentTypeExtensions[strings.ToLower(mediaType)]
}

// EntryName returns the 1-based, zero-padded entry name for page index i of
// total pages. Padding is at least four digits.
func EntryName(i, total int, ext string) string {
	width := max(4, len(strconv.Itoa(total)))
	if ext == "" {
		ext = ".jpg"
	} else if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return fmt.Sprintf("%0*d%s", width, i+1, ext)
}
