package csv

import (
	"encoding/csv"
	"io"
	"os"
	"strconv"

	aio "github.com/hed1ad/autosad/pkg/io"
)

var _ aio.Writer = (*Writer)(nil)

// Writer writes results as CSV rows: step, score, arm, variant, the label
// when known, and optionally the features.
type Writer struct {
	closer   io.Closer
	writer   *csv.Writer
	features bool
	header   bool
	wrote    bool
}

// WriterOption configures a Writer.
type WriterOption func(*Writer)

// WithFeatures appends the input features to every row.
func WithFeatures(on bool) WriterOption {
	return func(w *Writer) { w.features = on }
}

// WithoutHeader suppresses the header row.
func WithoutHeader() WriterOption {
	return func(w *Writer) { w.header = false }
}

// CreateWriter creates or truncates filename.
func CreateWriter(filename string, opts ...WriterOption) (*Writer, error) {
	file, err := os.Create(filename)
	if err != nil {
		return nil, err
	}
	w := NewWriter(file, opts...)
	w.closer = file
	return w, nil
}

// NewWriter writes to dst. Close flushes but does not close dst.
func NewWriter(dst io.Writer, opts ...WriterOption) *Writer {
	w := &Writer{writer: csv.NewWriter(dst), header: true}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Write outputs one result.
func (w *Writer) Write(result aio.Result) error {
	if !w.wrote && w.header {
		header := []string{"step", "score", "arm", "variant", "label"}
		if w.features {
			for i := range result.Features {
				header = append(header, "f"+strconv.Itoa(i))
			}
		}
		if err := w.writer.Write(header); err != nil {
			return err
		}
	}
	w.wrote = true

	label := ""
	if result.Labeled {
		label = "0"
		if result.Anomaly {
			label = "1"
		}
	}
	row := []string{
		strconv.FormatInt(result.Step, 10),
		strconv.FormatFloat(result.Score, 'g', -1, 64),
		strconv.Itoa(result.Arm),
		result.Variant,
		label,
	}
	if w.features {
		for _, f := range result.Features {
			row = append(row, strconv.FormatFloat(f, 'g', -1, 64))
		}
	}
	return w.writer.Write(row)
}

// WriteAll outputs results and flushes.
func (w *Writer) WriteAll(results []aio.Result) error {
	for _, r := range results {
		if err := w.Write(r); err != nil {
			return err
		}
	}
	w.writer.Flush()
	return w.writer.Error()
}

// Close flushes buffered rows and closes the file when the writer owns one.
func (w *Writer) Close() error {
	w.writer.Flush()
	if err := w.writer.Error(); err != nil {
		return err
	}
	if w.closer != nil {
		return w.closer.Close()
	}
	return nil
}
