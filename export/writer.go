package export

import (
	"fmt"
	"os"
	"path/filepath"
	"unicode/utf8"

	"github.com/gocarina/gocsv"
	log "github.com/sirupsen/logrus"

	"jiaming2012/labor-export/models"
)

type Options struct {
	Delimiter     string
	IncludeHeader bool
}

// Writer appends rows to a partial file next to the destination. Finish moves it into
// place; Close without Finish discards it. Close is safe to call on every exit path.
type Writer struct {
	path     string
	partial  string
	file     *os.File
	csv      *delimitedWriter
	rows     int
	done     bool
	finished bool
}

func Create(path string, opts Options) (*Writer, error) {
	delimiter := ","
	if opts.Delimiter != "" {
		r, size := utf8.DecodeRuneInString(opts.Delimiter)
		if size != len(opts.Delimiter) || r == '"' || r == '\r' || r == '\n' {
			return nil, &models.ConfigurationError{Reason: fmt.Sprintf("delimiter must be a single character other than a quote or line break, got %q", opts.Delimiter)}
		}
		delimiter = opts.Delimiter
	}

	if err := os.MkdirAll(filepath.Dir(path), os.ModePerm); err != nil {
		return nil, fmt.Errorf("failed to create export directory: %w", err)
	}

	partial := path + ".partial"
	f, err := os.OpenFile(partial, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", partial, err)
	}

	out := &Writer{
		path:    path,
		partial: partial,
		file:    f,
		csv:     newDelimitedWriter(f, delimiter),
	}

	if opts.IncludeHeader {
		if err := out.csv.Write(Columns); err != nil {
			out.Close()
			return nil, fmt.Errorf("failed to write header: %w", err)
		}
		out.csv.Flush()
	}

	return out, nil
}

// Check reports whether the text fields of an entry can be written unquoted.
func (w *Writer) Check(e models.RawEntry) error {
	fields := []struct{ name, value string }{
		{"employee id", e.EmployeeID},
		{"pay code", e.PayCode},
		{"job code", e.JobCode},
		{"work order", e.FieldWorkOrderID},
	}

	for _, f := range fields {
		if err := w.csv.check(f.value); err != nil {
			return fmt.Errorf("%s: %w", f.name, err)
		}
	}
	return nil
}

// Emit writes one aggregate.
func (w *Writer) Emit(a models.Aggregate) error {
	if w.done {
		return fmt.Errorf("export file %s is already closed", w.path)
	}

	if err := gocsv.MarshalCSVWithoutHeaders([]Row{NewRow(a)}, w.csv); err != nil {
		return err
	}

	w.rows++
	return nil
}

func (w *Writer) Rows() int {
	return w.rows
}

func (w *Writer) Path() string {
	return w.path
}

// Finish closes the file and moves it to its destination.
func (w *Writer) Finish() error {
	if w.done {
		return fmt.Errorf("export file %s is already closed", w.path)
	}
	w.done = true

	w.csv.Flush()
	if err := w.csv.Error(); err != nil {
		w.file.Close()
		os.Remove(w.partial)
		return fmt.Errorf("failed to flush %s: %w", w.partial, err)
	}

	if err := w.file.Close(); err != nil {
		os.Remove(w.partial)
		return fmt.Errorf("failed to close %s: %w", w.partial, err)
	}

	if err := os.Rename(w.partial, w.path); err != nil {
		os.Remove(w.partial)
		return fmt.Errorf("failed to move export into place: %w", err)
	}

	w.finished = true
	return nil
}

// Close releases the file. Rows of an unfinished export are discarded.
func (w *Writer) Close() {
	if w.done {
		return
	}
	w.done = true

	if err := w.file.Close(); err != nil {
		log.Warnf("failed to close %s: %v", w.partial, err)
	}

	if err := os.Remove(w.partial); err != nil && !os.IsNotExist(err) {
		log.Warnf("failed to remove %s: %v", w.partial, err)
	}
}

// Discard removes a finished export, used when a later step of the run fails.
func (w *Writer) Discard() {
	w.Close()
	if !w.finished {
		return
	}

	if err := os.Remove(w.path); err != nil && !os.IsNotExist(err) {
		log.Warnf("failed to remove %s: %v", w.path, err)
	}
}
