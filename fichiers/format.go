package fichiers

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/go-pdf/fpdf"
)

// Format is a conversion target.
type Format string

const (
	FormatPDF Format = "PDF"
	FormatCSV Format = "CSV"
)

var ErrUnsupportedFormat = errors.New("unsupported format")

func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToUpper(strings.TrimSpace(s))) {
	case FormatPDF:
		return FormatPDF, nil
	case FormatCSV:
		return FormatCSV, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, s)
}

func (f Format) Ext() string {
	return "." + strings.ToLower(string(f))
}

// ConvertedName swaps a .txt suffix for the format's extension, or appends
// the extension to any other name.
func (f Format) ConvertedName(name string) string {
	if strings.HasSuffix(strings.ToLower(name), ".txt") {
		return name[:len(name)-len(".txt")] + f.Ext()
	}
	return name + f.Ext()
}

// Convert writes text from r to w in format f.
func (f Format) Convert(w io.Writer, r io.Reader) error {
	switch f {
	case FormatCSV:
		return toCSV(w, r)
	case FormatPDF:
		return toPDF(w, r)
	}
	return fmt.Errorf("%w: %q", ErrUnsupportedFormat, string(f))
}

// toCSV emits one record per non-empty line, fields split on whitespace.
func toCSV(w io.Writer, r io.Reader) error {
	cw := csv.NewWriter(w)
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 {
			continue
		}
		if err := cw.Write(fields); err != nil {
			return err
		}
	}
	if err := sc.Err(); err != nil {
		return err
	}
	cw.Flush()
	return cw.Error()
}

func toPDF(w io.Writer, r io.Reader) error {
	text, err := io.ReadAll(r)
	if err != nil {
		return err
	}

	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetFont("Courier", "", 10)
	pdf.AddPage()
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	for _, line := range strings.Split(string(bytes.ReplaceAll(text, []byte("\r\n"), []byte("\n"))), "\n") {
		pdf.MultiCell(0, 5, tr(line), "", "L", false)
	}
	return pdf.Output(w)
}
