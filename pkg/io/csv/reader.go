// Package csv reads feature rows from CSV files and writes scoring results
// back out as CSV.
package csv

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/hed1ad/autosad/pkg/detectors"
	aio "github.com/hed1ad/autosad/pkg/io"
)

var _ aio.Reader = (*Reader)(nil)

// Reader reads samples from CSV data. Every column except the optional
// label column is a feature.
type Reader struct {
	closer    io.Closer
	reader    *csv.Reader
	hasHeader bool
	headers   []string

	labelName  string
	labelIndex int
	hasLabel   bool
	skipped    int
}

// Option configures a CSV reader.
type Option func(*Reader)

// WithHeader indicates the CSV has a header row.
func WithHeader(has bool) Option {
	return func(r *Reader) {
		r.hasHeader = has
	}
}

// WithLabelColumn marks the header column name as ground truth.
func WithLabelColumn(name string) Option {
	return func(r *Reader) {
		r.labelName = name
		r.hasLabel = name != ""
	}
}

// WithLabelIndex marks column i as ground truth. Negative indices count
// from the end, so -1 is the last column.
func WithLabelIndex(i int) Option {
	return func(r *Reader) {
		r.labelIndex = i
		r.hasLabel = true
	}
}

// WithComma sets the field delimiter.
func WithComma(c rune) Option {
	return func(r *Reader) {
		r.reader.Comma = c
	}
}

// NewReader opens filename for reading.
func NewReader(filename string, opts ...Option) (*Reader, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, err
	}

	r, err := New(file, opts...)
	if err != nil {
		file.Close()
		return nil, err
	}
	r.closer = file
	return r, nil
}

// New reads CSV data from src.
func New(src io.Reader, opts ...Option) (*Reader, error) {
	r := &Reader{
		reader:    csv.NewReader(src),
		hasHeader: true,
	}
	r.reader.FieldsPerRecord = -1
	r.reader.TrimLeadingSpace = true

	for _, opt := range opts {
		opt(r)
	}

	// Read header if present
	if r.hasHeader {
		headers, err := r.reader.Read()
		if err != nil {
			return nil, fmt.Errorf("read header: %w", err)
		}
		r.headers = headers
	}

	if r.labelName != "" {
		if !r.hasHeader {
			return nil, errors.New("label column by name requires a header")
		}
		r.labelIndex = -1
		for i, h := range r.headers {
			if strings.EqualFold(strings.TrimSpace(h), r.labelName) {
				r.labelIndex = i
			}
		}
		if r.labelIndex < 0 {
			return nil, fmt.Errorf("label column %q not found", r.labelName)
		}
	}

	return r, nil
}

// Headers returns the column headers.
func (r *Reader) Headers() []string {
	return r.headers
}

// FeatureNames returns the headers of feature columns.
func (r *Reader) FeatureNames() []string {
	if !r.hasLabel || r.headers == nil {
		return r.headers
	}
	label := r.resolve(len(r.headers))
	names := make([]string, 0, len(r.headers))
	for i, h := range r.headers {
		if i != label {
			names = append(names, h)
		}
	}
	return names
}

// Skipped returns how many malformed rows were dropped.
func (r *Reader) Skipped() int {
	return r.skipped
}

// Read returns every remaining row.
func (r *Reader) Read() ([]aio.Sample, error) {
	var data []aio.Sample

	for {
		record, err := r.reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}

		s, err := r.parse(record)
		if err != nil {
			r.skipped++
			continue // Skip malformed rows
		}
		data = append(data, s)
	}

	return data, nil
}

// Stream returns a channel of rows for real-time processing.
func (r *Reader) Stream(ctx context.Context) (<-chan aio.Sample, error) {
	out := make(chan aio.Sample, 100)

	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			default:
				record, err := r.reader.Read()
				if err == io.EOF {
					return
				}
				var perr *csv.ParseError
				if errors.As(err, &perr) {
					r.skipped++
					continue
				}
				if err != nil {
					return
				}

				s, err := r.parse(record)
				if err != nil {
					r.skipped++
					continue
				}

				select {
				case out <- s:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}

// Close releases resources.
func (r *Reader) Close() error {
	if r.closer != nil {
		return r.closer.Close()
	}
	return nil
}

func (r *Reader) resolve(width int) int {
	if r.labelIndex < 0 {
		return width + r.labelIndex
	}
	return r.labelIndex
}

// parse converts a record into a sample, splitting off the label.
func (r *Reader) parse(record []string) (aio.Sample, error) {
	if len(record) == 0 {
		return aio.Sample{}, errors.New("empty row")
	}

	label := -1
	if r.hasLabel {
		label = r.resolve(len(record))
		if label < 0 || label >= len(record) {
			return aio.Sample{}, fmt.Errorf("label column %d out of range", label)
		}
	}

	var s aio.Sample
	s.Features = make([]float64, 0, len(record))
	for i, val := range record {
		if i == label {
			anomaly, err := ParseLabel(val)
			if err != nil {
				return aio.Sample{}, err
			}
			s.Labeled = true
			s.Anomaly = anomaly
			continue
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if err != nil {
			return aio.Sample{}, err
		}
		s.Features = append(s.Features, f)
	}
	if len(s.Features) == 0 {
		return aio.Sample{}, errors.New("row has no features")
	}
	return s, nil
}

// ParseLabel interprets a ground-truth cell. Numbers are anomalous when
// non-zero; the words anomaly, outlier, attack and true are anomalous and
// normal, inlier, benign and false are not.
func ParseLabel(v string) (bool, error) {
	v = strings.ToLower(strings.TrimSpace(v))
	switch v {
	case "anomaly", "outlier", "attack", "true", "yes":
		return true, nil
	case "normal", "inlier", "benign", "false", "no":
		return false, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return false, fmt.Errorf("invalid label %q", v)
	}
	return f != 0, nil
}

// ScanRange reads filename once and returns the per-feature bounds of
// every row, honouring the same options as NewReader.
func ScanRange(filename string, opts ...Option) (detectors.Scaling, error) {
	r, err := NewReader(filename, opts...)
	if err != nil {
		return detectors.Scaling{}, err
	}
	defer r.Close()

	var scan aio.RangeScanner
	for {
		record, err := r.reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return detectors.Scaling{}, err
		}
		s, err := r.parse(record)
		if err != nil {
			continue
		}
		scan.Observe(s.Features)
	}
	return scan.Scaling(), nil
}
