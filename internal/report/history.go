// Package report renders student history as spreadsheets.
package report

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/p-n-ai/pai-compass/internal/store"
)

// HistorySheet is the name of the worksheet holding history rows.
const HistorySheet = "History"

// HistoryHeader is the first row of the history sheet.
var HistoryHeader = []string{
	"timestamp",
	"student_id",
	"kc_id",
	"SOLO_level",
	"target_SOLO_level",
	"location",
	"lat",
	"lng",
	"timezone",
	"student_response",
	"justification",
	"misconceptions",
	"educational_grade",
}

// WriteHistoryXLSX writes records, in the given order, as an XLSX workbook.
func WriteHistoryXLSX(w io.Writer, records []store.HistoryRecord) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", HistorySheet); err != nil {
		return fmt.Errorf("naming sheet: %w", err)
	}

	header := make([]any, len(HistoryHeader))
	for i, h := range HistoryHeader {
		header[i] = h
	}
	if err := f.SetSheetRow(HistorySheet, "A1", &header); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("creating header style: %w", err)
	}
	if err := f.SetRowStyle(HistorySheet, 1, 1, bold); err != nil {
		return fmt.Errorf("styling header: %w", err)
	}

	for i, rec := range records {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		row := []any{
			rec.Timestamp,
			rec.StudentID,
			rec.KCID,
			string(rec.SOLOLevel),
			deref(rec.TargetSOLOLevel),
			rec.Location,
			rec.Lat,
			rec.Lng,
			rec.Timezone,
			deref(rec.StudentResponse),
			deref(rec.Justification),
			deref(rec.Misconceptions),
			deref(rec.EducationalGrade),
		}
		if err := f.SetSheetRow(HistorySheet, cell, &row); err != nil {
			return fmt.Errorf("writing row %d: %w", i+2, err)
		}
	}

	if err := f.SetColWidth(HistorySheet, "A", "A", 26); err != nil {
		return fmt.Errorf("sizing columns: %w", err)
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("writing workbook: %w", err)
	}
	return nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
