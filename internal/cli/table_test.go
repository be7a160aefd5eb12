// ABOUTME: Tests for result and calibration tables
// ABOUTME: Checks alignment and no-response formatting
package cli

import (
	"math"
	"strings"
	"testing"

	"github.com/harperreed/puretone/internal/protocol"
	"github.com/harperreed/puretone/pkg/audiometry"
	"github.com/harperreed/puretone/pkg/calibration"
)

func TestFormatThreshold(t *testing.T) {
	tests := []struct {
		in   int
		want string
	}{
		{20, "20"},
		{-10, "-10"},
		{audiometry.NoResponse, "NR"},
	}

	for _, tt := range tests {
		if got := FormatThreshold(tt.in); got != tt.want {
			t.Errorf("FormatThreshold(%d): expected %q, got %q", tt.in, tt.want, got)
		}
	}
}

func TestFormatReference(t *testing.T) {
	if got := FormatReference(-52.25); got != "-52.2" && got != "-52.3" {
		t.Errorf("expected one decimal, got %q", got)
	}
	if got := FormatReference(math.Inf(1)); got != "no response" {
		t.Errorf("expected no response, got %q", got)
	}
}

func TestFormatFrequency(t *testing.T) {
	if got := FormatFrequency(1000); got != "1000 Hz" {
		t.Errorf("expected 1000 Hz, got %q", got)
	}
	if got := FormatFrequency(1500.5); got != "1500.5 Hz" {
		t.Errorf("expected 1500.5 Hz, got %q", got)
	}
}

func TestResultsTableOrder(t *testing.T) {
	r := audiometry.Result{
		Frequencies: []float64{1000, 250},
		Left:        audiometry.Thresholds{1000: 20, 250: audiometry.NoResponse},
		Right:       audiometry.Thresholds{1000: 35, 250: 15},
	}

	table := ResultsTable(r)
	if len(table.Rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(table.Rows))
	}
	if table.Rows[0][0] != "1000 Hz" || table.Rows[1][0] != "250 Hz" {
		t.Errorf("expected test order, got %v", table.Rows)
	}
	if table.Rows[1][1] != "NR" {
		t.Errorf("expected NR for left 250 Hz, got %s", table.Rows[1][1])
	}
}

func TestTableAlignment(t *testing.T) {
	table := &Table{
		Headers: []string{"Frequency", "Left"},
		Rows: [][]string{
			{"250 Hz", "5"},
			{"1000 Hz", "-10"},
		},
	}

	lines := strings.Split(strings.TrimRight(table.String(), "\n"), "\n")
	if len(lines) != 4 {
		t.Fatalf("expected header, rule and 2 rows, got %d lines", len(lines))
	}
	for i, line := range lines {
		if len(line) != len(lines[0]) {
			t.Errorf("line %d: expected width %d, got %d (%q)", i, len(lines[0]), len(line), line)
		}
	}
	if !strings.HasSuffix(lines[2], "   5") {
		t.Errorf("expected right aligned value, got %q", lines[2])
	}
}

func TestCalibrationTableSorted(t *testing.T) {
	m := calibration.NewMap(map[float64]float64{8000: calibration.NoResponse, 250: -40})

	table := CalibrationTable(m)
	if table.Rows[0][0] != "250 Hz" {
		t.Errorf("expected ascending order, got %v", table.Rows)
	}
	if table.Rows[1][1] != "no response" {
		t.Errorf("expected no response, got %s", table.Rows[1][1])
	}
}

func TestEmptyTable(t *testing.T) {
	if (&Table{}).String() != "" {
		t.Error("expected empty output for table without headers")
	}
}

func TestSessionResultTable(t *testing.T) {
	res := protocol.SessionResult{
		Left: []protocol.Threshold{
			{FrequencyHz: 1000, ThresholdHL: 10},
			{FrequencyHz: 2000, ThresholdHL: 25},
		},
		Right: []protocol.Threshold{
			{FrequencyHz: 1000, ThresholdHL: -1, NoResponse: true},
			{FrequencyHz: 4000, ThresholdHL: 5},
		},
	}

	table := SessionResultTable(res)
	if len(table.Rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(table.Rows))
	}

	want := [][]string{
		{"1000 Hz", "10", "NR"},
		{"2000 Hz", "25", "NR"},
		{"4000 Hz", "NR", "5"},
	}
	for i, row := range want {
		for j, cell := range row {
			if table.Rows[i][j] != cell {
				t.Errorf("row %d col %d: expected %q, got %q", i, j, cell, table.Rows[i][j])
			}
		}
	}
}
