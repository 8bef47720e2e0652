package report

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-pdf/fpdf"

	"jiaming2012/labor-export/pipeline"
)

const maxListedRejections = 20

// Text renders the run summary as plain lines.
func Text(s pipeline.Summary) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Batch: %s\n", s.BatchID)
	fmt.Fprintf(&b, "Window: %s - %s\n", s.Start.Format("01/02/2006"), s.End.Format("01/02/2006"))
	fmt.Fprintf(&b, "Run: %s - %s\n\n", s.StartedAt.Format("2006-01-02 15:04:05"), s.FinishedAt.Format("2006-01-02 15:04:05"))

	fmt.Fprintf(&b, "Entries: %d\n", s.Entries)
	fmt.Fprintf(&b, "Accepted: %d\n", s.Accepted)
	fmt.Fprintf(&b, "Filtered: %d\n", s.Filtered)
	fmt.Fprintf(&b, "Failed: %d\n", s.Failed)
	fmt.Fprintf(&b, "Compensating: %d (%d dropped)\n", s.Compensating, s.CompensatingDropped)
	fmt.Fprintf(&b, "Rows written: %d\n", s.Emitted)
	fmt.Fprintf(&b, "Zero groups suppressed: %d\n", s.Suppressed)
	fmt.Fprintf(&b, "Rolled back: %d\n", s.RolledBack)

	if s.Cancelled {
		b.WriteString("\nThe run was cancelled. Entries not reached stay pending.\n")
	}

	if s.OutputPath != "" {
		fmt.Fprintf(&b, "\nFile: %s\n", s.OutputPath)
	}
	if s.RemotePath != "" {
		fmt.Fprintf(&b, "Delivered: %s\n", s.RemotePath)
	}

	if len(s.Rejections) > 0 {
		b.WriteString("\nRejected entries:\n")
		for i, r := range s.Rejections {
			if i == maxListedRejections {
				fmt.Fprintf(&b, "... and %d more\n", len(s.Rejections)-maxListedRejections)
				break
			}
			fmt.Fprintf(&b, "  %v\n", r)
		}
	}

	return b.String()
}

// WritePDF writes a one page summary of the run into dir and returns its path.
func WritePDF(dir string, s pipeline.Summary) (string, error) {
	if err := os.MkdirAll(dir, os.ModePerm); err != nil {
		return "", err
	}

	header := fmt.Sprintf("Labor Export %s\n\n", s.Target)

	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.AddPage()
	pdf.SetFont("Helvetica", "B", 16)
	pdf.MultiCell(0, 10, header, "", "", false)
	pdf.SetFont("Helvetica", "", 11)
	pdf.MultiCell(0, 6, Text(s), "", "", false)

	path := filepath.Join(dir, fmt.Sprintf("summary_%s_%s.pdf", s.Target, s.StartedAt.Format("20060102_150405")))
	if err := pdf.OutputFileAndClose(path); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}

	return path, nil
}
