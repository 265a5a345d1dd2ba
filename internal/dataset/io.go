package dataset

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// maxPrealloc caps how many rows or values a file header may reserve up front.
const maxPrealloc = 4096

// ReadFANN parses the plain-text FANN training format: a header line with
// sample, input and output counts followed by alternating input and output
// lines. Tokens are whitespace separated, so line breaks are not significant.
// A body holding fewer or more samples than the header declares is an
// ErrSampleCount error.
func ReadFANN(r io.Reader) (*Dataset, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	scanner.Split(bufio.ScanWords)

	tokens := 0
	next := func(what string) (string, error) {
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				return "", fmt.Errorf("read %s: %w", what, err)
			}
			return "", fmt.Errorf("read %s: %w", what, io.ErrUnexpectedEOF)
		}
		tokens++
		return scanner.Text(), nil
	}

	header := make([]int, 3)
	for i, name := range []string{"sample count", "input count", "output count"} {
		token, err := next(name)
		if err != nil {
			return nil, err
		}
		n, err := strconv.Atoi(token)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("parse %s %q: invalid header", name, token)
		}
		header[i] = n
	}
	numData, numInput, numOutput := header[0], header[1], header[2]
	if numInput == 0 || numOutput == 0 {
		return nil, fmt.Errorf("input and output counts must be > 0")
	}

	readVector := func(sample int, n int, what string) ([]float64, error) {
		row := make([]float64, 0, min(n, maxPrealloc))
		for j := 0; j < n; j++ {
			token, err := next(fmt.Sprintf("sample %d %s %d", sample, what, j))
			if err != nil {
				return nil, err
			}
			v, err := strconv.ParseFloat(token, 64)
			if err != nil {
				return nil, fmt.Errorf("parse sample %d %s %d: %w", sample, what, j, err)
			}
			row = append(row, v)
		}
		return row, nil
	}

	d := New(numInput, numOutput, min(numData, maxPrealloc))
	for i := 0; i < numData; i++ {
		start := tokens
		input, err := readVector(i, numInput, "input")
		if err != nil {
			if tokens == start && errors.Is(err, io.ErrUnexpectedEOF) {
				return nil, fmt.Errorf("%w: header declares %d, body holds %d", ErrSampleCount, numData, i)
			}
			return nil, err
		}
		output, err := readVector(i, numOutput, "output")
		if err != nil {
			return nil, err
		}
		if err := d.Append(input, output); err != nil {
			return nil, err
		}
	}
	if scanner.Scan() {
		return nil, fmt.Errorf("%w: header declares %d, body holds more", ErrSampleCount, numData)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read trailing data: %w", err)
	}
	return d, nil
}

func LoadFANNFile(path string) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	d, err := ReadFANN(f)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	return d, nil
}

// ReadCSV parses a numeric table with a header row. Columns whose name starts
// with "output" are outputs, every other column is an input; column order is
// kept within each group. Blank records are skipped.
func ReadCSV(r io.Reader) (*Dataset, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	var inputCols, outputCols []int
	for i, name := range header {
		if strings.HasPrefix(strings.ToLower(strings.TrimSpace(name)), "output") {
			outputCols = append(outputCols, i)
		} else {
			inputCols = append(inputCols, i)
		}
	}
	if len(inputCols) == 0 || len(outputCols) == 0 {
		return nil, fmt.Errorf("csv header needs input and output columns, got %v", header)
	}

	d := New(len(inputCols), len(outputCols), 64)
	for line := 2; ; line++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv row %d: %w", line, err)
		}
		if blankRecord(record) {
			continue
		}
		if len(record) != len(header) {
			return nil, fmt.Errorf("csv row %d has %d fields, want %d", line, len(record), len(header))
		}
		pick := func(cols []int) ([]float64, error) {
			row := make([]float64, len(cols))
			for j, col := range cols {
				v, err := strconv.ParseFloat(strings.TrimSpace(record[col]), 64)
				if err != nil {
					return nil, fmt.Errorf("parse csv row %d column %q: %w", line, header[col], err)
				}
				row[j] = v
			}
			return row, nil
		}
		input, err := pick(inputCols)
		if err != nil {
			return nil, err
		}
		output, err := pick(outputCols)
		if err != nil {
			return nil, err
		}
		if err := d.Append(input, output); err != nil {
			return nil, err
		}
	}
	return d, nil
}

func blankRecord(record []string) bool {
	for _, field := range record {
		if strings.TrimSpace(field) != "" {
			return false
		}
	}
	return true
}

// LoadFile reads a data file, choosing the CSV reader for a .csv extension
// and the FANN reader otherwise.
func LoadFile(path string) (*Dataset, error) {
	if !strings.EqualFold(filepath.Ext(path), ".csv") {
		return LoadFANNFile(path)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	d, err := ReadCSV(f)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	return d, nil
}

// LoadFiles reads every data file and merges them in argument order.
func LoadFiles(paths ...string) (*Dataset, error) {
	if len(paths) == 0 {
		return nil, fmt.Errorf("at least one data file is required")
	}
	sets := make([]*Dataset, 0, len(paths))
	for _, path := range paths {
		d, err := LoadFile(path)
		if err != nil {
			return nil, err
		}
		sets = append(sets, d)
	}
	merged, err := Merge(sets...)
	if err != nil {
		return nil, fmt.Errorf("merge data files: %w", err)
	}
	return merged, nil
}

// WriteFANN writes d in the format ReadFANN accepts.
func WriteFANN(w io.Writer, d *Dataset) error {
	bw := bufio.NewWriter(w)
	if _, err := fmt.Fprintf(bw, "%d %d %d\n", d.Len(), d.numInput, d.numOutput); err != nil {
		return err
	}
	for i := range d.inputs {
		if err := writeLine(bw, d.inputs[i]); err != nil {
			return err
		}
		if err := writeLine(bw, d.outputs[i]); err != nil {
			return err
		}
	}
	return bw.Flush()
}

func writeLine(w *bufio.Writer, values []float64) error {
	for j, v := range values {
		if j > 0 {
			if err := w.WriteByte(' '); err != nil {
				return err
			}
		}
		if _, err := w.WriteString(strconv.FormatFloat(v, 'g', -1, 64)); err != nil {
			return err
		}
	}
	return w.WriteByte('\n')
}

// WriteCSV writes rows of plain numeric vectors under an optional header.
func WriteCSV(w io.Writer, header []string, rows [][]float64) error {
	writer := csv.NewWriter(w)
	if len(header) > 0 {
		if err := writer.Write(header); err != nil {
			return err
		}
	}
	record := make([]string, 0, 8)
	for _, row := range rows {
		record = record[:0]
		for _, v := range row {
			record = append(record, strconv.FormatFloat(v, 'g', -1, 64))
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}
