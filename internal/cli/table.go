// ABOUTME: Aligned text tables for results and calibration summaries
// ABOUTME: Plain strings so output is stable in logs and tests
package cli

import (
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/harperreed/puretone/internal/protocol"
	"github.com/harperreed/puretone/pkg/audiometry"
	"github.com/harperreed/puretone/pkg/calibration"
)

// NoResponseLabel marks a frequency without a threshold
const NoResponseLabel = "NR"

// Table renders a header row and data rows. The first column is left
// aligned, the rest are right aligned.
type Table struct {
	Headers []string
	Rows    [][]string
}

// String renders the table with aligned columns
func (t *Table) String() string {
	if len(t.Headers) == 0 {
		return ""
	}

	widths := make([]int, len(t.Headers))
	for i, h := range t.Headers {
		widths[i] = len(h)
	}
	for _, row := range t.Rows {
		for i, cell := range row {
			if i < len(widths) && len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}

	var sb strings.Builder
	writeRow := func(cells []string) {
		for i := range widths {
			cell := ""
			if i < len(cells) {
				cell = cells[i]
			}
			if i > 0 {
				sb.WriteString("  ")
				sb.WriteString(fmt.Sprintf("%*s", widths[i], cell))
			} else {
				sb.WriteString(fmt.Sprintf("%-*s", widths[i], cell))
			}
		}
		sb.WriteString("\n")
	}

	writeRow(t.Headers)
	total := 0
	for _, w := range widths {
		total += w
	}
	sb.WriteString(strings.Repeat("-", total+2*(len(widths)-1)))
	sb.WriteString("\n")
	for _, row := range t.Rows {
		writeRow(row)
	}
	return sb.String()
}

// FormatFrequency renders a frequency such as "1000 Hz"
func FormatFrequency(hz float64) string {
	return strconv.FormatFloat(hz, 'f', -1, 64) + " Hz"
}

// FormatThreshold renders a threshold in dB HL or NR
func FormatThreshold(hl int) string {
	if hl == audiometry.NoResponse {
		return NoResponseLabel
	}
	return strconv.Itoa(hl)
}

// FormatReference renders a calibration reference level
func FormatReference(dbfs float64) string {
	if math.IsInf(dbfs, 1) {
		return "no response"
	}
	return fmt.Sprintf("%.1f", dbfs)
}

// ResultsTable lays out thresholds for both ears in test order
func ResultsTable(r audiometry.Result) *Table {
	t := &Table{Headers: []string{"Frequency", "Left (dB HL)", "Right (dB HL)"}}
	for _, f := range r.Frequencies {
		left, right := NoResponseLabel, NoResponseLabel
		if v, ok := r.Left[f]; ok {
			left = FormatThreshold(v)
		}
		if v, ok := r.Right[f]; ok {
			right = FormatThreshold(v)
		}
		t.Rows = append(t.Rows, []string{FormatFrequency(f), left, right})
	}
	return t
}

// SessionResultTable lays out a result received from a remote session
func SessionResultTable(r protocol.SessionResult) *Table {
	t := &Table{Headers: []string{"Frequency", "Left (dB HL)", "Right (dB HL)"}}

	index := make(map[float64]int, len(r.Left))
	for _, th := range r.Left {
		index[th.FrequencyHz] = len(t.Rows)
		t.Rows = append(t.Rows, []string{FormatFrequency(th.FrequencyHz), formatWire(th), NoResponseLabel})
	}
	for _, th := range r.Right {
		i, ok := index[th.FrequencyHz]
		if !ok {
			i = len(t.Rows)
			t.Rows = append(t.Rows, []string{FormatFrequency(th.FrequencyHz), NoResponseLabel, ""})
		}
		t.Rows[i][2] = formatWire(th)
	}
	return t
}

func formatWire(th protocol.Threshold) string {
	if th.NoResponse {
		return NoResponseLabel
	}
	return FormatThreshold(th.ThresholdHL)
}

// CalibrationTable lists reference levels in ascending frequency order
func CalibrationTable(m calibration.Map) *Table {
	t := &Table{Headers: []string{"Frequency", "Reference (dBFS)"}}
	for _, f := range m.Frequencies() {
		ref, _ := m.Reference(f)
		t.Rows = append(t.Rows, []string{FormatFrequency(f), FormatReference(ref)})
	}
	return t
}

// PrintResults writes a titled results table
func PrintResults(w io.Writer, r audiometry.Result) {
	fmt.Fprintln(w, HeaderStyle.Render("Hearing thresholds"))
	fmt.Fprint(w, ResultsTable(r).String())
	fmt.Fprintf(w, "%s\n", KeyStyle.Render(NoResponseLabel+" = no response at maximum output"))
}

// PrintCalibration writes a titled calibration table
func PrintCalibration(w io.Writer, m calibration.Map) {
	fmt.Fprintln(w, HeaderStyle.Render("Calibration"))
	fmt.Fprint(w, CalibrationTable(m).String())
}
