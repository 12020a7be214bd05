package utils

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnterminatedQuote is returned when a quoted field runs to end of input.
var ErrUnterminatedQuote = errors.New("unterminated quoted field")

type csvState int

const (
	fieldStart csvState = iota
	unquoted
	quoted
	quoteInQuoted // saw '"' inside a quoted field: escape or closing quote
)

// ParseCSV splits text into records. Quoted fields may contain commas,
// doubled quotes and line breaks. Both "\n" and "\r\n" end a record.
// Lines that are completely empty are skipped.
func ParseCSV(text string) ([][]string, error) {
	var (
		records [][]string
		record  []string
		field   strings.Builder
		state   = fieldStart
		line    = 1
		opened  = 0 // line of the last opening quote
		quotes  bool
	)

	endField := func() {
		record = append(record, field.String())
		field.Reset()
	}
	endRecord := func() {
		endField()
		// a lone "" is an empty value, not a blank line
		if quotes || !(len(record) == 1 && record[0] == "") {
			records = append(records, record)
		}
		record = nil
		quotes = false
	}

	runes := []rune(text)
	for i := 0; i < len(runes); i++ {
		c := runes[i]

		switch state {
		case fieldStart, unquoted:
			switch c {
			case '"':
				if state == fieldStart {
					state = quoted
					opened = line
					quotes = true
				} else {
					field.WriteRune(c)
				}
			case ',':
				endField()
				state = fieldStart
			case '\r':
				if i+1 < len(runes) && runes[i+1] == '\n' {
					i++
				}
				endRecord()
				line++
				state = fieldStart
			case '\n':
				endRecord()
				line++
				state = fieldStart
			default:
				field.WriteRune(c)
				state = unquoted
			}

		case quoted:
			switch c {
			case '"':
				state = quoteInQuoted
			case '\n':
				field.WriteRune(c)
				line++
			default:
				field.WriteRune(c)
			}

		case quoteInQuoted:
			switch c {
			case '"':
				field.WriteRune('"')
				state = quoted
			case ',':
				endField()
				state = fieldStart
			case '\r':
				if i+1 < len(runes) && runes[i+1] == '\n' {
					i++
				}
				endRecord()
				line++
				state = fieldStart
			case '\n':
				endRecord()
				line++
				state = fieldStart
			default:
				// Text after a closing quote is kept verbatim.
				field.WriteRune(c)
				state = unquoted
			}
		}
	}

	if state == quoted {
		return nil, fmt.Errorf("line %d: %w", opened, ErrUnterminatedQuote)
	}
	if state != fieldStart || len(record) > 0 {
		endRecord()
	}

	return records, nil
}

// EscapeCSVField quotes a value when it contains a comma, quote or line
// break, doubling any embedded quotes.
func EscapeCSVField(v string) string {
	if !strings.ContainsAny(v, ",\"\n\r") {
		return v
	}
	return `"` + strings.ReplaceAll(v, `"`, `""`) + `"`
}

// FormatCSVRecord joins escaped fields with commas. A record of one empty
// field is written as "" so it does not read back as a blank line.
func FormatCSVRecord(fields []string) string {
	if len(fields) == 1 && fields[0] == "" {
		return `""`
	}
	escaped := make([]string, len(fields))
	for i, f := range fields {
		escaped[i] = EscapeCSVField(f)
	}
	return strings.Join(escaped, ",")
}
