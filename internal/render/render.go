// Package render prints report tables and run summaries to a terminal.
package render

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"promoetl/internal/etlerr"
	"promoetl/internal/pipeline"
	"promoetl/internal/table"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
)

// NullText is shown for NULL cells.
const NullText = "null"

// Report writes t as a bordered table headed by its name and row count.
func Report(w io.Writer, t *table.Table) {
	fmt.Fprintf(w, "%s (%d rows)\n", t.Name(), t.Len())

	tw := tablewriter.NewWriter(w)
	tw.SetAutoFormatHeaders(false)
	tw.SetHeader(t.Schema().Names())
	tw.SetAutoWrapText(false)
	for r := 0; r < t.Len(); r++ {
		row := make([]string, len(t.Schema()))
		for c := range row {
			v := t.Value(r, c)
			if v == nil {
				row[c] = NullText
				continue
			}
			row[c] = table.Format(v)
		}
		tw.Append(row)
	}
	tw.Render()
}

// Summary writes the per-report outcome of a run. Colors are used when
// useColor is set.
func Summary(w io.Writer, s *pipeline.Summary, useColor bool) {
	fmt.Fprintf(w, "run %s job=%s duration=%s\n", s.RunID, s.Job, s.Duration.Truncate(time.Millisecond))

	tw := tablewriter.NewWriter(w)
	tw.SetHeader([]string{"#", "Report", "Status", "Rows", "Digest"})
	tw.SetBorder(false)
	tw.SetAutoWrapText(false)
	tw.SetAlignment(tablewriter.ALIGN_LEFT)
	for i, r := range s.Reports {
		rows := ""
		if r.Status == pipeline.StatusBuilt || r.Status == pipeline.StatusWritten {
			rows = strconv.Itoa(r.Rows)
		}
		tw.Append([]string{strconv.Itoa(i + 1), r.Name, status(r.Status, useColor), rows, r.Digest})
	}
	tw.Render()

	if s.Err != nil {
		stage, object := "", ""
		var se *etlerr.StageError
		if errors.As(s.Err, &se) {
			stage, object = se.Stage, se.Object
		}
		msg := fmt.Sprintf("FAILED stage=%s object=%s: %v", orDash(stage), orDash(object), s.Err)
		if useColor {
			msg = color.RedString(msg)
		}
		fmt.Fprintln(w, msg)
	}
}

func status(st pipeline.Status, useColor bool) string {
	if !useColor {
		return string(st)
	}
	switch st {
	case pipeline.StatusWritten:
		return color.GreenString(string(st))
	case pipeline.StatusBuilt:
		return color.CyanString(string(st))
	case pipeline.StatusFailed:
		return color.RedString(string(st))
	default:
		return color.YellowString(string(st))
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
