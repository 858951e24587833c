package importer

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ParseCSV reads a CSV stream whose first record is the header row and
// returns one column-keyed map per data record. Blank records are skipped.
// With maxRows > 0, more than maxRows data records is ErrTooManyRows.
func ParseCSV(r io.Reader, maxRows int) ([]map[string]string, error) {
	reader := csv.NewReader(bufio.NewReaderSize(r, 1024*1024))
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: csv has no header row", ErrInvalidInput)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read csv header: %v", ErrInvalidInput, err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(strings.TrimPrefix(header[i], "\ufeff"))
	}

	var rows []map[string]string
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: read csv: %v", ErrInvalidInput, err)
		}
		if blank(record) {
			continue
		}
		if maxRows > 0 && len(rows) == maxRows {
			return nil, fmt.Errorf("%w: more than %d rows", ErrTooManyRows, maxRows)
		}
		row := make(map[string]string, len(header))
		for i, col := range header {
			if i < len(record) && col != "" {
				row[col] = record[i]
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func blank(record []string) bool {
	for _, v := range record {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
