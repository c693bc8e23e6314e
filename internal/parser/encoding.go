package parser

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
)

// decodeText decodes raw export bytes using a cascade of encodings in
// priority order, accepting the first that round-trips cleanly. Real-world
// exports frequently lie about their encoding; later cascade members
// recover the content instead of failing the whole file.
func decodeText(raw []byte) (string, error) {
	// UTF-16 first when a BOM says so, otherwise the bytes would pass
	// the Latin-1 fallback as mojibake.
	if len(raw) >= 2 {
		if (raw[0] == 0xFF && raw[1] == 0xFE) || (raw[0] == 0xFE && raw[1] == 0xFF) {
			dec := unicode.UTF16(unicode.LittleEndian, unicode.UseBOM).NewDecoder()
			if out, err := dec.Bytes(raw); err == nil {
				return string(out), nil
			}
		}
	}

	if utf8.Valid(raw) {
		// Strip a UTF-8 BOM if present.
		return strings.TrimPrefix(string(raw), "\ufeff"), nil
	}

	for _, enc := range []encoding.Encoding{charmap.Windows1252, charmap.ISO8859_1} {
		out, err := enc.NewDecoder().Bytes(raw)
		if err == nil && utf8.Valid(out) {
			return string(out), nil
		}
	}

	return "", fmt.Errorf("content not decodable by any supported encoding")
}

// splitLines splits decoded content into the raw line list handed back to
// consumers. Line numbers elsewhere are 1-based indexes into this slice.
func splitLines(content string) []string {
	return strings.Split(strings.ReplaceAll(content, "\r\n", "\n"), "\n")
}
