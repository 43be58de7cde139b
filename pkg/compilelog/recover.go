// Package compilelog turns raw compiler log files into readable diagnostics.
//
// MetaEditor writes its log in whatever encoding the host locale dictates:
// UTF-16LE with a BOM on most Windows installs, plain UTF-8 under wine, and
// occasionally a legacy single-byte code page. Recover tries a fixed list of
// decoders and always returns something; ExtractErrorLines then reduces the
// decoded text to the lines a caller cares about.
package compilelog

import (
	"bytes"
	"errors"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// Decoder converts raw log bytes into text.
//
// Decode returns an error when the input is not valid for the encoding; the
// next decoder in the chain is then tried.
type Decoder struct {
	Name   string
	Decode func(b []byte) (string, error)
}

var (
	// ErrOddLength indicates a UTF-16 candidate with a dangling byte.
	ErrOddLength = errors.New("odd byte length for utf-16")

	// ErrReplacement indicates the decoder had to substitute invalid sequences.
	ErrReplacement = errors.New("decoded text contains replacement characters")
)

// DefaultDecoders is the decode order used by Recover.
//
// UTF-8 stays first. The single-byte code pages accept any input, so
// Windows-1252 is only reached when ISO-8859-1 is removed from a custom chain.
var DefaultDecoders = []Decoder{
	{Name: "utf-8", Decode: decodeUTF8},
	{Name: "utf-16le", Decode: decodeUTF16LE},
	{Name: "iso-8859-1", Decode: decodeWith(charmap.ISO8859_1)},
	{Name: "windows-1252", Decode: decodeWith(charmap.Windows1252)},
}

// Recover decodes a compiler log using DefaultDecoders.
func Recover(logBytes []byte) string {
	text, _ := RecoverWith(logBytes, DefaultDecoders)
	return text
}

// RecoverWith decodes logBytes with the first decoder that succeeds and
// reports which one was used. When every decoder fails the bytes are read as
// UTF-8 with invalid sequences replaced and NUL bytes removed; the returned
// name is then "fallback".
func RecoverWith(logBytes []byte, decoders []Decoder) (string, string) {
	if len(logBytes) == 0 {
		return "", ""
	}
	for _, d := range decoders {
		text, err := d.Decode(logBytes)
		if err != nil {
			continue
		}
		return text, d.Name
	}
	return fallback(logBytes), "fallback"
}

func decodeUTF8(b []byte) (string, error) {
	out, _, err := transform.Bytes(encoding.UTF8Validator, b)
	if err != nil {
		return "", err
	}
	return strings.TrimPrefix(string(out), "\ufeff"), nil
}

func decodeUTF16LE(b []byte) (string, error) {
	if len(b)%2 != 0 {
		return "", ErrOddLength
	}
	dec := unicode.UTF16(unicode.LittleEndian, unicode.UseBOM).NewDecoder()
	out, _, err := transform.Bytes(dec, b)
	if err != nil {
		return "", err
	}
	if bytes.ContainsRune(out, utf8.RuneError) {
		return "", ErrReplacement
	}
	return string(out), nil
}

func decodeWith(enc encoding.Encoding) func([]byte) (string, error) {
	return func(b []byte) (string, error) {
		out, _, err := transform.Bytes(enc.NewDecoder(), b)
		if err != nil {
			return "", err
		}
		return string(out), nil
	}
}

func fallback(b []byte) string {
	text := strings.ToValidUTF8(string(b), "\ufffd")
	return strings.ReplaceAll(text, "\x00", "")
}
