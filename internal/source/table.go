// Package source maps tabular registration exports onto registration records.
package source

import (
	"fmt"
	"strings"

	"github.com/geocoder89/tickethub/internal/domain/registration"
)

// ColumnMap names the header of each column the pipeline reads or writes.
// Timestamp and AttendeeID are optional.
type ColumnMap struct {
	Timestamp    string
	Name         string
	Email        string
	TicketStatus string
	EmailStatus  string
	AttendeeID   string
}

// Indices are zero-based column positions resolved from a header row; -1 means absent.
type Indices struct {
	Timestamp    int
	Name         int
	Email        int
	TicketStatus int
	EmailStatus  int
	AttendeeID   int
}

// Of returns the column index backing a writable field.
func (ix Indices) Of(f registration.Field) (int, bool) {
	var i int
	switch f {
	case registration.FieldTicketStatus:
		i = ix.TicketStatus
	case registration.FieldEmailStatus:
		i = ix.EmailStatus
	case registration.FieldAttendeeID:
		i = ix.AttendeeID
	default:
		return -1, false
	}
	return i, i >= 0
}

// Resolve locates every mapped column in header. Matching ignores surrounding
// whitespace and case.
func (m ColumnMap) Resolve(header []string) (Indices, error) {
	find := func(name string) int {
		want := strings.TrimSpace(name)
		if want == "" {
			return -1
		}
		for i, h := range header {
			if strings.EqualFold(strings.TrimSpace(h), want) {
				return i
			}
		}
		return -1
	}

	ix := Indices{
		Timestamp:    find(m.Timestamp),
		Name:         find(m.Name),
		Email:        find(m.Email),
		TicketStatus: find(m.TicketStatus),
		EmailStatus:  find(m.EmailStatus),
		AttendeeID:   find(m.AttendeeID),
	}

	var missing []string
	for _, c := range []struct {
		name string
		idx  int
	}{
		{m.Name, ix.Name},
		{m.Email, ix.Email},
		{m.TicketStatus, ix.TicketStatus},
		{m.EmailStatus, ix.EmailStatus},
	} {
		if c.idx < 0 {
			missing = append(missing, fmt.Sprintf("%q", c.name))
		}
	}
	if m.AttendeeID != "" && ix.AttendeeID < 0 {
		missing = append(missing, fmt.Sprintf("%q", m.AttendeeID))
	}

	if len(missing) > 0 {
		return Indices{}, fmt.Errorf("%w: %s", registration.ErrMissingColumn, strings.Join(missing, ", "))
	}
	return ix, nil
}

// RowIssue is a data row that could not be mapped and is left untouched.
type RowIssue struct {
	Row int
	Err error
}

// Records converts data rows (header excluded). Rows with a status value outside the
// closed set are reported as issues and omitted.
func Records(ix Indices, rows [][]string) ([]registration.Record, []RowIssue) {
	records := make([]registration.Record, 0, len(rows))
	var issues []RowIssue

	for i, row := range rows {
		cell := func(idx int) string {
			if idx < 0 || idx >= len(row) {
				return ""
			}
			return strings.TrimSpace(row[idx])
		}

		ticket, err := registration.ParseStatus(cell(ix.TicketStatus))
		if err != nil {
			issues = append(issues, RowIssue{Row: i, Err: fmt.Errorf("ticket status: %w", err)})
			continue
		}
		email, err := registration.ParseStatus(cell(ix.EmailStatus))
		if err != nil {
			issues = append(issues, RowIssue{Row: i, Err: fmt.Errorf("email status: %w", err)})
			continue
		}

		records = append(records, registration.Record{
			Row:          i,
			Timestamp:    cell(ix.Timestamp),
			Name:         cell(ix.Name),
			Email:        cell(ix.Email),
			AttendeeID:   cell(ix.AttendeeID),
			TicketStatus: ticket,
			EmailStatus:  email,
		})
	}

	return records, issues
}

// ColumnLetters converts a zero-based column index to A1 letters (0 -> A, 26 -> AA).
func ColumnLetters(idx int) string {
	var b []byte
	for n := idx + 1; n > 0; n = (n - 1) / 26 {
		b = append([]byte{byte('A' + (n-1)%26)}, b...)
	}
	return string(b)
}

// CellRef builds an A1 reference for a data row. Data row 0 is sheet row 2.
func CellRef(sheet string, row, col int) string {
	return fmt.Sprintf("%s!%s%d", QuoteSheet(sheet), ColumnLetters(col), row+2)
}

// RowRange covers one whole data row.
func RowRange(sheet string, row int) string {
	n := row + 2
	return fmt.Sprintf("%s!%d:%d", QuoteSheet(sheet), n, n)
}

func HeaderRange(sheet string) string {
	return fmt.Sprintf("%s!1:1", QuoteSheet(sheet))
}

// QuoteSheet wraps a sheet name in single quotes, doubling embedded quotes.
func QuoteSheet(sheet string) string {
	return "'" + strings.ReplaceAll(sheet, "'", "''") + "'"
}

// SpreadsheetID accepts either a bare id or a full sheet URL containing /d/<id>/.
func SpreadsheetID(link string) (string, error) {
	link = strings.TrimSpace(link)
	if link == "" {
		return "", fmt.Errorf("empty spreadsheet link")
	}

	const marker = "/d/"
	i := strings.Index(link, marker)
	if i < 0 {
		if strings.ContainsAny(link, "/?#") {
			return "", fmt.Errorf("invalid spreadsheet link %q", link)
		}
		return link, nil
	}

	rest := link[i+len(marker):]
	if j := strings.IndexAny(rest, "/?#"); j >= 0 {
		rest = rest[:j]
	}
	if rest == "" {
		return "", fmt.Errorf("invalid spreadsheet link %q", link)
	}
	return rest, nil
}
