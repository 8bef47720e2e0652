package export

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// delimitedWriter joins fields with the delimiter and never quotes them. A field
// holding a reserved character is refused without writing anything.
type delimitedWriter struct {
	out       *bufio.Writer
	delimiter string
	reserved  string
	err       error
}

func newDelimitedWriter(w io.Writer, delimiter string) *delimitedWriter {
	return &delimitedWriter{
		out:       bufio.NewWriter(w),
		delimiter: delimiter,
		reserved:  delimiter + "\"\r\n",
	}
}

func (d *delimitedWriter) check(field string) error {
	if strings.ContainsAny(field, d.reserved) {
		return fmt.Errorf("value %q contains a reserved character", field)
	}
	return nil
}

func (d *delimitedWriter) Write(row []string) error {
	if d.err != nil {
		return d.err
	}

	for _, field := range row {
		if err := d.check(field); err != nil {
			return err
		}
	}

	if _, err := d.out.WriteString(strings.Join(row, d.delimiter) + "\n"); err != nil {
		d.err = err
	}
	return d.err
}

func (d *delimitedWriter) Flush() {
	if d.err == nil {
		d.err = d.out.Flush()
	}
}

func (d *delimitedWriter) Error() error {
	return d.err
}
