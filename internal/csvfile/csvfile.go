// Package csvfile parses denormalized CSV exports (Supabase table dumps)
// into header-keyed rows.
//
// The dialect is deliberately line-oriented: quoted fields never span lines,
// because exports are produced one record per line. This rules out
// encoding/csv, which treats a newline inside an open quote as a field
// continuation.
package csvfile

import "strings"

// Row maps a header name to the raw string value for one data line.
// Headers with no corresponding value on a short line are absent from the
// map, which downstream coercion treats the same as an empty value.
type Row map[string]string

// Parse splits content into rows keyed by the header line.
//
// Line endings are normalized (CRLF and bare CR become LF) before
// splitting. The first line is the header; each header cell is trimmed.
// Blank lines are skipped. A file with no data rows yields nil.
func Parse(content string) []Row {
	normalized := strings.ReplaceAll(content, "\r\n", "\n")
	normalized = strings.ReplaceAll(normalized, "\r", "\n")

	lines := strings.Split(normalized, "\n")
	if len(lines) < 2 {
		return nil
	}

	headers := ParseLine(lines[0])
	for i, h := range headers {
		headers[i] = strings.TrimSpace(h)
	}

	var rows []Row
	for _, line := range lines[1:] {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		values := ParseLine(line)
		row := make(Row, len(headers))
		for i, header := range headers {
			if i >= len(values) {
				break
			}
			row[header] = values[i]
		}
		rows = append(rows, row)
	}

	return rows
}

// ParseLine tokenizes a single CSV line. It is stateless: quote state never
// carries across calls.
//
// A comma inside an open quote is literal, a doubled quote inside a quoted
// field is an escaped quote, and any other quote toggles the quoted state.
// Fields are trimmed of surrounding whitespace. An unterminated quote is
// not an error: the open field simply runs to the end of the line.
func ParseLine(line string) []string {
	var values []string
	var current strings.Builder
	inQuotes := false

	for i := 0; i < len(line); i++ {
		switch c := line[i]; {
		case c == '"':
			if inQuotes && i+1 < len(line) && line[i+1] == '"' {
				current.WriteByte('"')
				i++
			} else {
				inQuotes = !inQuotes
			}
		case c == ',' && !inQuotes:
			values = append(values, strings.TrimSpace(current.String()))
			current.Reset()
		default:
			current.WriteByte(c)
		}
	}
	values = append(values, strings.TrimSpace(current.String()))

	return values
}
