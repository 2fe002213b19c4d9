// Package csvfile persists the roster as the flat CSV file operators edit by
// hand. The format is a compatibility contract:
//
//	id,slack_name,email,glats_name
//	"U123","Jane Doe","jane@example.com","Jane D."
//
// Every field is quoted and embedded quotes are doubled. Fields containing
// line breaks are not supported; a line break always ends a record.
package csvfile

import (
	"regexp"
	"strings"

	"github.com/secmon-lab/bulkdm/pkg/domain/model"
)

// Header is the fixed column order written by EncodeRoster
const Header = "id,slack_name,email,glats_name"

const (
	colID        = "id"
	colSlackName = "slack_name"
	colEmail     = "email"
	colGlatsName = "glats_name"
)

var lineBreak = regexp.MustCompile(`\r?\n`)

// ParseLine splits one record into fields. A double quote toggles quoting,
// and "" inside a quoted field is a literal quote. Commas split fields only
// outside quotes.
func ParseLine(line string) []string {
	var (
		fields   []string
		current  strings.Builder
		inQuotes bool
	)

	for i := 0; i < len(line); i++ {
		ch := line[i]
		switch {
		case ch == '"':
			if inQuotes && i+1 < len(line) && line[i+1] == '"' {
				current.WriteByte('"')
				i++
				continue
			}
			inQuotes = !inQuotes
		case ch == ',' && !inQuotes:
			fields = append(fields, current.String())
			current.Reset()
		default:
			current.WriteByte(ch)
		}
	}

	return append(fields, current.String())
}

// table is a header index plus the data rows of a CSV text
type table struct {
	columns map[string]int
	rows    []string
}

func parseTable(text string) (*table, bool) {
	var lines []string
	for _, l := range lineBreak.Split(text, -1) {
		if strings.TrimSpace(l) != "" {
			lines = append(lines, l)
		}
	}
	if len(lines) < 2 {
		return nil, false
	}

	// Spreadsheet editors like to prepend a BOM when saving
	header := strings.TrimPrefix(lines[0], "\ufeff")

	columns := make(map[string]int)
	for i, name := range ParseLine(header) {
		key := strings.ToLower(strings.TrimSpace(name))
		if _, dup := columns[key]; !dup {
			columns[key] = i
		}
	}

	return &table{columns: columns, rows: lines[1:]}, true
}

func (t *table) index(name string) int {
	if i, ok := t.columns[name]; ok {
		return i
	}
	return -1
}

func field(cols []string, idx int) string {
	if idx < 0 || idx >= len(cols) {
		return ""
	}
	return cols[idx]
}

// DecodeRoster reads roster rows. Rows without an id are dropped and missing
// columns decode as empty strings. Username is not persisted and stays empty.
func DecodeRoster(text string) []model.RosterEntry {
	t, ok := parseTable(text)
	if !ok {
		return nil
	}

	idIdx := t.index(colID)
	nameIdx := t.index(colSlackName)
	emailIdx := t.index(colEmail)
	glatsIdx := t.index(colGlatsName)

	var entries []model.RosterEntry
	for _, row := range t.rows {
		cols := ParseLine(row)
		id := strings.TrimSpace(field(cols, idIdx))
		if id == "" {
			continue
		}
		entries = append(entries, model.RosterEntry{
			ID:        model.SlackUserID(id),
			SlackName: field(cols, nameIdx),
			Email:     field(cols, emailIdx),
			GlatsName: field(cols, glatsIdx),
		})
	}
	return entries
}

// DecodeAnnotations extracts the id -> glats_name map used to carry operator
// annotations across a remote refresh. Values are trimmed. It returns an
// empty map when either column is missing.
func DecodeAnnotations(text string) map[model.SlackUserID]string {
	annotations := make(map[model.SlackUserID]string)

	t, ok := parseTable(text)
	if !ok {
		return annotations
	}

	idIdx := t.index(colID)
	glatsIdx := t.index(colGlatsName)
	if idIdx < 0 || glatsIdx < 0 {
		return annotations
	}

	for _, row := range t.rows {
		cols := ParseLine(row)
		id := strings.TrimSpace(field(cols, idIdx))
		if id == "" {
			continue
		}
		annotations[model.SlackUserID(id)] = strings.TrimSpace(field(cols, glatsIdx))
	}
	return annotations
}

// EncodeRoster renders entries in the fixed column order
func EncodeRoster(entries []model.RosterEntry) string {
	lines := make([]string, 0, len(entries)+1)
	lines = append(lines, Header)
	for _, e := range entries {
		lines = append(lines, strings.Join([]string{
			quote(string(e.ID)),
			quote(e.SlackName),
			quote(e.Email),
			quote(e.GlatsName),
		}, ","))
	}
	return strings.Join(lines, "\n")
}

func quote(v string) string {
	return `"` + strings.ReplaceAll(v, `"`, `""`) + `"`
}
