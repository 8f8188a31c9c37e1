// Package sniffer identifies the format of an uploaded sales file from its
// content, so a misnamed upload still reaches the right parser.
package sniffer

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"
)

// Format is a detected file format
type Format string

const (
	FormatUnknown Format = ""
	FormatXLSX    Format = "xlsx" // Any OOXML workbook, xlsm included
	FormatCSV     Format = "csv"
)

var zipMagic = []byte("PK\x03\x04")

// Detect inspects the leading bytes of data.
func Detect(data []byte) Format {
	if len(data) == 0 {
		return FormatUnknown
	}
	if bytes.HasPrefix(data, zipMagic) {
		return FormatXLSX
	}

	line := HeaderLine(Normalize(data))
	if _, count := DetectDelimiter(line); count > 0 {
		return FormatCSV
	}
	return FormatUnknown
}

// Normalize strips a UTF-8 BOM and decodes Windows-1252 input, which
// spreadsheet exports on Windows still produce.
func Normalize(data []byte) []byte {
	data = bytes.TrimPrefix(data, []byte("\xEF\xBB\xBF"))
	if utf8.Valid(data) {
		return data
	}

	decoded, _, err := transform.Bytes(charmap.Windows1252.NewDecoder(), data)
	if err != nil {
		return data
	}
	return decoded
}

// HeaderLine returns the first line of a text file without line terminators.
func HeaderLine(data []byte) string {
	line, _, _ := bytes.Cut(data, []byte("\n"))
	return strings.TrimSpace(strings.TrimRight(string(line), "\r"))
}

// DetectDelimiter picks the most frequent candidate delimiter in line.
// Semicolons win ties because pt-BR exports use commas for decimals.
func DetectDelimiter(line string) (rune, int) {
	delimiters := []rune{';', '\t', ',', '|'}
	bestDelimiter := rune(0)
	bestCount := 0
	for _, d := range delimiters {
		count := strings.Count(line, string(d))
		if count > bestCount {
			bestCount = count
			bestDelimiter = d
		}
	}
	return bestDelimiter, bestCount
}

// Fingerprint hashes normalized header names, so uploads sharing a layout can
// be grouped in logs.
func Fingerprint(headers []string) string {
	var normalized []string
	for _, h := range headers {
		clean := strings.Map(func(r rune) rune {
			if unicode.IsLetter(r) || unicode.IsDigit(r) {
				return unicode.ToLower(r)
			}
			return -1
		}, h)
		if clean != "" {
			normalized = append(normalized, clean)
		}
	}

	hash := sha256.Sum256([]byte(strings.Join(normalized, "|")))
	return hex.EncodeToString(hash[:])
}
