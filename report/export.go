package report

import (
	"encoding/csv"
	"fmt"
	"html/template"
	"io"
	"sort"

	"github.com/gpureshape/gpuvalidate/export"
)

// sortedFiltered returns the report's filtered messages in a
// deterministic order (by fingerprint fields) so PrintReport and
// ExportReport produce stable output across runs.
func (r *Report) sortedFiltered() []export.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]export.Message, 0, len(r.filtered))
	for _, m := range r.filtered {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Schema != b.Schema {
			return a.Schema < b.Schema
		}
		if a.SGUID != b.SGUID {
			return a.SGUID < b.SGUID
		}
		if a.Token.PUID != b.Token.PUID {
			return a.Token.PUID < b.Token.PUID
		}
		ca, cb := a.Coordinate, b.Coordinate
		if ca.X != cb.X {
			return ca.X < cb.X
		}
		if ca.Y != cb.Y {
			return ca.Y < cb.Y
		}
		if ca.Z != cb.Z {
			return ca.Z < cb.Z
		}
		return ca.Mip < cb.Mip
	})
	return out
}

// PrintReport writes one line per filtered message, with source
// location when a Symbolicator resolved it (spec §6 "PrintReport").
func (r *Report) PrintReport(w io.Writer) error {
	for _, m := range r.sortedFiltered() {
		loc := ""
		if mapping, ok := r.symbolicate(m.SGUID); ok {
			loc = fmt.Sprintf(" at file %d line %d:%d", mapping.FileUID, mapping.Line, mapping.Column)
		}
		if _, err := fmt.Fprintf(w, "schema=%d puid=%d coord=(%d,%d,%d,%d)%s\n",
			m.Schema, m.Token.PUID, m.Coordinate.X, m.Coordinate.Y, m.Coordinate.Z, m.Coordinate.Mip, loc); err != nil {
			return err
		}
	}
	return nil
}

// PrintSummary writes the aggregate counters (spec §6 "PrintSummary").
func (r *Report) PrintSummary(w io.Writer) error {
	s := r.GetReportStatus()
	_, err := fmt.Fprintf(w, "state=%s filtered=%d latent_overshoots=%d exported_bytes=%d\n",
		s.State, s.FilteredMessages, s.LatentOvershoots, s.ExportedBytes)
	return err
}

// ExportFormat selects ExportReport's serialization.
type ExportFormat int

const (
	ExportCSV ExportFormat = iota
	ExportHTML
)

var reportHTMLTemplate = template.Must(template.New("report").Parse(`<!DOCTYPE html>
<table>
<tr><th>Schema</th><th>PUID</th><th>X</th><th>Y</th><th>Z</th><th>Mip</th><th>File</th><th>Line</th><th>Column</th></tr>
{{range .}}<tr><td>{{.Schema}}</td><td>{{.PUID}}</td><td>{{.X}}</td><td>{{.Y}}</td><td>{{.Z}}</td><td>{{.Mip}}</td><td>{{.File}}</td><td>{{.Line}}</td><td>{{.Column}}</td></tr>
{{end}}</table>
`))

type exportRow struct {
	Schema                export.SchemaID
	PUID                  uint64
	X, Y, Z, Mip          uint32
	File, Line, Column    int
}

func (r *Report) exportRows() []exportRow {
	msgs := r.sortedFiltered()
	rows := make([]exportRow, 0, len(msgs))
	for _, m := range msgs {
		mapping, _ := r.symbolicate(m.SGUID)
		rows = append(rows, exportRow{
			Schema: m.Schema,
			PUID:   uint64(m.Token.PUID),
			X:      m.Coordinate.X, Y: m.Coordinate.Y, Z: m.Coordinate.Z, Mip: m.Coordinate.Mip,
			File: int(mapping.FileUID), Line: mapping.Line, Column: mapping.Column,
		})
	}
	return rows
}

// ExportReport serializes the filtered message store to w as CSV or
// HTML (spec §6 "ExportReport"), tracking the bytes written toward
// GetReportStatus's ExportedBytes counter.
func (r *Report) ExportReport(w io.Writer, format ExportFormat) error {
	counting := &countingWriter{w: w}
	rows := r.exportRows()

	var err error
	switch format {
	case ExportCSV:
		cw := csv.NewWriter(counting)
		if err = cw.Write([]string{"schema", "puid", "x", "y", "z", "mip", "file", "line", "column"}); err == nil {
			for _, row := range rows {
				if err = cw.Write([]string{
					fmt.Sprint(row.Schema), fmt.Sprint(row.PUID),
					fmt.Sprint(row.X), fmt.Sprint(row.Y), fmt.Sprint(row.Z), fmt.Sprint(row.Mip),
					fmt.Sprint(row.File), fmt.Sprint(row.Line), fmt.Sprint(row.Column),
				}); err != nil {
					break
				}
			}
		}
		if err == nil {
			cw.Flush()
			err = cw.Error()
		}
	case ExportHTML:
		err = reportHTMLTemplate.Execute(counting, rows)
	default:
		return fmt.Errorf("report: unknown export format %d", format)
	}
	if err != nil {
		return err
	}

	r.mu.Lock()
	r.exportedBytes += uint64(counting.n)
	r.mu.Unlock()
	return nil
}

type countingWriter struct {
	w io.Writer
	n int
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += n
	return n, err
}
