package delivery

import (
	"mime"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// DefaultFileName is used when nothing ASCII survives transliteration
const DefaultFileName = "video.mp4"

// ContentDisposition builds an attachment header carrying both an ASCII
// fallback name and the RFC 5987 UTF-8 name.
func ContentDisposition(name string) string {
	if name == "" {
		name = DefaultFileName
	}

	header := mime.FormatMediaType("attachment", map[string]string{"filename": ASCIIFileName(name)})
	if header == "" {
		header = `attachment; filename="` + DefaultFileName + `"`
	}

	return header + "; filename*=UTF-8''" + encodeExtValue(name)
}

// ASCIIFileName transliterates name to printable ASCII. Accents are folded
// (é → e); anything else outside ASCII is dropped.
func ASCIIFileName(name string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, name)
	if err != nil {
		folded = name
	}

	ascii := strings.Map(func(r rune) rune {
		if r < 0x20 || r > 0x7e {
			return -1
		}
		return r
	}, folded)

	ascii = strings.TrimSpace(ascii)
	if strings.Trim(ascii, ". ") == "" || strings.HasPrefix(ascii, ".") {
		return DefaultFileName
	}

	return ascii
}

// encodeExtValue percent-encodes every byte outside the RFC 5987 attr-char set
func encodeExtValue(s string) string {
	const hex = "0123456789ABCDEF"

	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if isAttrChar(c) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(hex[c>>4])
		b.WriteByte(hex[c&0x0f])
	}

	return b.String()
}

func isAttrChar(c byte) bool {
	switch {
	case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		return true
	}
	return strings.IndexByte("!#$&+-.^_`|~", c) >= 0
}
