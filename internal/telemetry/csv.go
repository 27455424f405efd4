package telemetry

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/banshee-data/trackrunner/internal/fsutil"
)

// CSVHeader is the header row of the CSV log.
var CSVHeader = []string{"Heading", "Diff/Error"}

// CSVSink writes "heading in degrees, raw differential" rows. Each row is
// flushed so a log cut short by a crash is still readable.
type CSVSink struct {
	f io.WriteCloser
	w *csv.Writer
}

// NewCSVSink creates path on fs and writes the header.
func NewCSVSink(fs fsutil.FileSystem, path string) (*CSVSink, error) {
	f, err := fs.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create telemetry csv %s: %w", path, err)
	}
	s := &CSVSink{f: f, w: csv.NewWriter(f)}
	if err := s.write(CSVHeader); err != nil {
		_ = f.Close()
		return nil, err
	}
	return s, nil
}

// Record appends one row.
func (s *CSVSink) Record(sample Sample) error {
	return s.write([]string{
		strconv.FormatFloat(sample.HeadingDegrees(), 'g', -1, 64),
		strconv.FormatFloat(sample.Diff, 'g', -1, 64),
	})
}

func (s *CSVSink) write(row []string) error {
	if err := s.w.Write(row); err != nil {
		return fmt.Errorf("write telemetry row: %w", err)
	}
	s.w.Flush()
	if err := s.w.Error(); err != nil {
		return fmt.Errorf("flush telemetry row: %w", err)
	}
	return nil
}

// Close flushes and closes the file.
func (s *CSVSink) Close() error {
	s.w.Flush()
	return errors.Join(s.w.Error(), s.f.Close())
}

// Row is one parsed CSV log row.
type Row struct {
	HeadingDegrees float64
	Diff           float64
}

// ReadCSV parses a CSV log written by CSVSink.
func ReadCSV(r io.Reader) ([]Row, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = len(CSVHeader)

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read telemetry header: %w", err)
	}
	if header[0] != CSVHeader[0] || header[1] != CSVHeader[1] {
		return nil, fmt.Errorf("unexpected telemetry header %q", header)
	}

	var rows []Row
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return rows, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read telemetry line %d: %w", line, err)
		}
		h, err := strconv.ParseFloat(rec[0], 64)
		if err != nil {
			return nil, fmt.Errorf("telemetry line %d heading: %w", line, err)
		}
		d, err := strconv.ParseFloat(rec[1], 64)
		if err != nil {
			return nil, fmt.Errorf("telemetry line %d diff: %w", line, err)
		}
		rows = append(rows, Row{HeadingDegrees: h, Diff: d})
	}
}
