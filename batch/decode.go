package batch

import (
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/ianaindex"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// DecodeReader returns a reader that converts input in the named IANA charset
// (utf-8, shift_jis, utf-16, ...) to UTF-8. A byte order mark is honored and
// removed for the Unicode encodings.
func DecodeReader(r io.Reader, charset string) (io.Reader, error) {
	enc, err := lookupEncoding(charset)
	if err != nil {
		return nil, err
	}
	return transform.NewReader(r, enc.NewDecoder()), nil
}

// charsetAliases maps spellings seen in script dumps to their IANA names
var charsetAliases = map[string]string{
	"utf8":      "utf-8",
	"utf-8":     "utf-8",
	"utf16":     "utf-16",
	"utf-16":    "utf-16",
	"sjis":      "shift_jis",
	"shift-jis": "shift_jis",
	"shift_jis": "shift_jis",
	"cp932":     "windows-31j",
	"latin1":    "iso-8859-1",
}

// NormalizeCharset resolves a charset name case-insensitively through the alias
// table. Unknown names come back lower-cased with found=false; "" stays "".
func NormalizeCharset(charset string) (normalized string, found bool) {
	lower := strings.ToLower(strings.TrimSpace(charset))
	if canonical, ok := charsetAliases[lower]; ok {
		return canonical, true
	}
	return lower, false
}

func lookupEncoding(charset string) (encoding.Encoding, error) {
	name, _ := NormalizeCharset(charset)
	switch name {
	case "", "utf-8":
		return unicode.UTF8BOM, nil
	case "utf-16":
		return unicode.UTF16(unicode.LittleEndian, unicode.UseBOM), nil
	}

	enc, err := ianaindex.IANA.Encoding(name)
	if err != nil {
		return nil, fmt.Errorf("unsupported charset %q: %w", charset, err)
	}
	if enc == nil {
		return nil, fmt.Errorf("unsupported charset %q", charset)
	}
	return enc, nil
}
