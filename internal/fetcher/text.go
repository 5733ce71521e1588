package fetcher

import (
	"bytes"
	"unicode/utf8"

	"github.com/rotisserie/eris"
	"golang.org/x/text/encoding/charmap"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// DecodeText normalizes a downloaded text payload to UTF-8. A leading byte
// order mark is stripped; bytes that are not valid UTF-8 are reinterpreted as
// Latin-1, which is what older government CSV exports actually are.
func DecodeText(data []byte) (string, error) {
	data = bytes.TrimPrefix(data, utf8BOM)

	if utf8.Valid(data) {
		return string(data), nil
	}

	decoded, err := charmap.ISO8859_1.NewDecoder().Bytes(data)
	if err != nil {
		return "", eris.Wrap(err, "text: decode latin-1")
	}
	return string(decoded), nil
}
