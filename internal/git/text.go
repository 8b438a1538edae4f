package git

import "unicode/utf8"

// textSniffLen bounds the prefix checked for NUL bytes.
const textSniffLen = 8000

// IsText reports whether data is valid UTF-8 with no NUL byte in its
// leading bytes. Empty content is text.
func IsText(data []byte) bool {
	sniff := data
	if len(sniff) > textSniffLen {
		sniff = sniff[:textSniffLen]
	}
	for _, b := range sniff {
		if b == 0 {
			return false
		}
	}
	return utf8.Valid(data)
}
