package request

import (
	"mime"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/unicode"
)

// DefaultCharset is used when a request declares no charset.
const DefaultCharset = "utf-8"

// CharsetOf extracts the charset parameter of a Content-Type value,
// defaulting to DefaultCharset.
func CharsetOf(contentType string) string {
	if contentType == "" {
		return DefaultCharset
	}
	_, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return DefaultCharset
	}
	if cs := params["charset"]; cs != "" {
		return strings.ToLower(cs)
	}
	return DefaultCharset
}

// lookupEncoding resolves a charset label. Unknown labels resolve to UTF-8;
// the second result reports whether the label was recognized.
func lookupEncoding(charset string) (encoding.Encoding, bool) {
	if charset == "" {
		return unicode.UTF8, true
	}
	enc, err := htmlindex.Get(charset)
	if err != nil {
		return unicode.UTF8, false
	}
	return enc, true
}

func isUTF8(enc encoding.Encoding) bool {
	return enc == unicode.UTF8 || enc == encoding.Nop
}

// decodeBytes converts b from enc to a UTF-8 string. Undecodable input is
// returned as-is.
func decodeBytes(enc encoding.Encoding, b []byte) string {
	if isUTF8(enc) {
		return string(b)
	}
	out, err := enc.NewDecoder().Bytes(b)
	if err != nil {
		return string(b)
	}
	return string(out)
}

func decodeString(enc encoding.Encoding, s string) string {
	if isUTF8(enc) {
		return s
	}
	return decodeBytes(enc, []byte(s))
}
