package sheets

import (
	"context"
	"fmt"
	"strings"
)

// Worksheet is a handle for one worksheet of a spreadsheet.
// Row 1 is always the header row. Rows and columns are 1-indexed,
// matching how the underlying store addresses cells.
type Worksheet struct {
	client *Client
	name   string
}

// Name returns the worksheet name
func (w *Worksheet) Name() string {
	return w.name
}

// HeaderMap reads the header row and returns a mapping of header name
// to its 1-indexed column position. Header names are trimmed.
func (w *Worksheet) HeaderMap(ctx context.Context) (map[string]int, error) {
	rows, err := w.client.getValues(ctx, w.rangeRef("1:1"))
	if err != nil {
		return nil, fmt.Errorf("read header row: %w", err)
	}
	headers := map[string]int{}
	if len(rows) == 0 {
		return headers, nil
	}
	for i, h := range rows[0] {
		headers[strings.TrimSpace(h)] = i + 1
	}
	return headers, nil
}

// AllValues fetches every cell of the worksheet, header row included
func (w *Worksheet) AllValues(ctx context.Context) ([][]string, error) {
	rows, err := w.client.getValues(ctx, quoteSheet(w.name))
	if err != nil {
		return nil, fmt.Errorf("read worksheet %q: %w", w.name, err)
	}
	return rows, nil
}

// ColumnValues returns the distinct values of a 1-indexed column,
// excluding the header cell
func (w *Worksheet) ColumnValues(ctx context.Context, col int) (map[string]struct{}, error) {
	letter := colLetter(col)
	rows, err := w.client.getValues(ctx, w.rangeRef(fmt.Sprintf("%s2:%s", letter, letter)))
	if err != nil {
		return nil, fmt.Errorf("read column %d of %q: %w", col, w.name, err)
	}
	values := make(map[string]struct{}, len(rows))
	for _, row := range rows {
		if len(row) > 0 && row[0] != "" {
			values[row[0]] = struct{}{}
		}
	}
	return values, nil
}

// Records reads the worksheet and returns one header-keyed map per data row
func (w *Worksheet) Records(ctx context.Context) ([]map[string]string, error) {
	rows, err := w.AllValues(ctx)
	if err != nil {
		return nil, err
	}
	if len(rows) < 2 {
		return nil, nil
	}

	headers := rows[0]
	records := make([]map[string]string, 0, len(rows)-1)
	for _, row := range rows[1:] {
		record := make(map[string]string, len(headers))
		for i, h := range headers {
			key := strings.TrimSpace(h)
			if key == "" {
				continue
			}
			if i < len(row) {
				record[key] = row[i]
			} else {
				record[key] = ""
			}
		}
		records = append(records, record)
	}
	return records, nil
}

// AppendRow appends one row after the worksheet's last data row
func (w *Worksheet) AppendRow(ctx context.Context, values []string) error {
	if err := w.client.appendValues(ctx, quoteSheet(w.name), values); err != nil {
		return fmt.Errorf("append row to %q: %w", w.name, err)
	}
	return nil
}

// UpdateCell writes a single 1-indexed cell
func (w *Worksheet) UpdateCell(ctx context.Context, row, col int, value string) error {
	ref := w.rangeRef(fmt.Sprintf("%s%d", colLetter(col), row))
	if err := w.client.updateValues(ctx, ref, [][]string{{value}}); err != nil {
		return fmt.Errorf("update cell (%d,%d) of %q: %w", row, col, w.name, err)
	}
	return nil
}

func (w *Worksheet) rangeRef(a1 string) string {
	return quoteSheet(w.name) + "!" + a1
}

// quoteSheet quotes a worksheet name for use in an A1 range reference.
// Names containing anything beyond letters and digits must be quoted.
func quoteSheet(name string) string {
	plain := true
	for _, r := range name {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9') {
			plain = false
			break
		}
	}
	if plain {
		return name
	}
	return "'" + strings.ReplaceAll(name, "'", "''") + "'"
}

// colLetter converts a 1-indexed column number to its A1 letter form
func colLetter(col int) string {
	var b []byte
	for col > 0 {
		col--
		b = append([]byte{byte('A' + col%26)}, b...)
		col /= 26
	}
	return string(b)
}
