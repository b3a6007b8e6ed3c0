package cdr

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Dataset is a header row followed by positional data rows, the shape of
// an uploaded JSON export or a remote query result.
type Dataset struct {
	Header []string
	Rows   [][]any
}

// MarshalJSON encodes the dataset as a single table whose first row is the header
func (d Dataset) MarshalJSON() ([]byte, error) {
	table := make([][]any, 0, len(d.Rows)+1)
	header := make([]any, len(d.Header))
	for i, h := range d.Header {
		header[i] = h
	}
	table = append(table, header)
	table = append(table, d.Rows...)
	return json.Marshal(table)
}

// UnmarshalJSON decodes a table of the form [[header...], [row...], ...].
// Shape problems are reported as *MalformedDatasetError.
func (d *Dataset) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return malformed("dataset must be a JSON array of rows: %v", err)
	}
	if len(raw) == 0 {
		return malformed("dataset has no header row")
	}

	header, err := decodeRow(raw[0])
	if err != nil {
		return malformed("header row is not an array")
	}
	names := make([]string, 0, len(header))
	for _, h := range header {
		s, ok := stringify(h)
		if !ok {
			s = ""
		}
		names = append(names, s)
	}

	rows := make([][]any, 0, len(raw)-1)
	for i, r := range raw[1:] {
		row, err := decodeRow(r)
		if err != nil {
			return malformed("row %d is not an array", i+1)
		}
		rows = append(rows, row)
	}

	d.Header = names
	d.Rows = rows
	return nil
}

func decodeRow(raw json.RawMessage) ([]any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var row []any
	if err := dec.Decode(&row); err != nil {
		return nil, err
	}
	if row == nil {
		return nil, fmt.Errorf("null row")
	}
	return row, nil
}

// Normalize pairs the header with every data row positionally. A row
// shorter than the header leaves its trailing fields absent; extra cells
// are ignored. No type coercion happens here.
func Normalize(header []string, rows [][]any) ([]Record, error) {
	if len(header) == 0 {
		return nil, malformed("header row is empty")
	}

	records := make([]Record, 0, len(rows))
	for _, row := range rows {
		records = append(records, newRecord(header, row))
	}
	return records, nil
}

// NormalizeDataset is Normalize over a decoded Dataset
func NormalizeDataset(d Dataset) ([]Record, error) {
	return Normalize(d.Header, d.Rows)
}

func newRecord(header []string, row []any) Record {
	fields := make(map[string]string, len(header))
	for i, name := range header {
		if i >= len(row) {
			break
		}
		if v, ok := stringify(row[i]); ok {
			fields[name] = v
		}
	}

	var rec Record
	rec.Fields = fields
	assign := func(col string, f Field, dst *string) {
		if v, ok := fields[col]; ok {
			*dst = v
			rec.present |= f
		}
	}
	assign(ColCallDate, FieldCallDate, &rec.CallDate)
	assign(ColSource, FieldSource, &rec.Source)
	assign(ColDestination, FieldDestination, &rec.Destination)
	assign(ColDisposition, FieldDisposition, &rec.Disposition)
	assign(ColDuration, FieldDuration, &rec.Duration)
	assign(ColBillSec, FieldBillSec, &rec.BillSec)

	// dst is an alias for destination
	if !rec.Has(FieldDestination) {
		assign(ColDst, FieldDestination, &rec.Destination)
	}
	return rec
}

// stringify renders a decoded JSON cell as text. nil is reported as absent.
func stringify(v any) (string, bool) {
	switch t := v.(type) {
	case nil:
		return "", false
	case string:
		return t, true
	case json.Number:
		return t.String(), true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32), true
	case int:
		return strconv.Itoa(t), true
	case int64:
		return strconv.FormatInt(t, 10), true
	case int32:
		return strconv.FormatInt(int64(t), 10), true
	case bool:
		return strconv.FormatBool(t), true
	case []byte:
		return string(t), true
	case fmt.Stringer:
		return t.String(), true
	default:
		return fmt.Sprint(t), true
	}
}
