package extractor

import (
	"errors"
	"unicode/utf8"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

func extractPlainText(raw []byte) (string, error) {
	if len(raw) >= len(utf8BOM) && string(raw[:len(utf8BOM)]) == string(utf8BOM) {
		raw = raw[len(utf8BOM):]
	}
	if !utf8.Valid(raw) {
		return "", errors.New("text file is not valid UTF-8")
	}
	return string(raw), nil
}
