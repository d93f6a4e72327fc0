package httpapi

import (
	"bytes"
	"fmt"
	"sort"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/americansport/gymgate/internal/gate/types"
)

const (
	attendanceSheet = "Attendance"
	dailySheet      = "Daily visits"
)

// attendanceWorkbook renders the ledger as an .xlsx with one row per event
// and a per-day summary of check-ins.  Times are shown in loc.
func attendanceWorkbook(events []types.AttendanceEvent, loc *time.Location) (*bytes.Buffer, error) {
	f := excelize.NewFile()
	defer f.Close()

	idx, err := f.NewSheet(attendanceSheet)
	if err != nil {
		return nil, fmt.Errorf("new sheet: %w", err)
	}
	f.SetActiveSheet(idx)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, fmt.Errorf("delete default sheet: %w", err)
	}

	header, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"#D9E1F2"}},
	})
	if err != nil {
		return nil, fmt.Errorf("header style: %w", err)
	}

	cols := []string{"Date", "Time", "Member", "Type", "Origin", "Event ID"}
	if err := writeRow(f, attendanceSheet, 1, cols); err != nil {
		return nil, err
	}
	_ = f.SetCellStyle(attendanceSheet, "A1", "F1", header)
	_ = f.SetColWidth(attendanceSheet, "C", "C", 22)
	_ = f.SetColWidth(attendanceSheet, "F", "F", 38)

	perDay := make(map[string]int)
	for i, ev := range events {
		ts := ev.Timestamp.In(loc)
		day := ts.Format("2006-01-02")
		row := []string{day, ts.Format("15:04:05"), ev.MemberID, string(ev.Type), string(ev.Origin), ev.ID}
		if err := writeRow(f, attendanceSheet, i+2, row); err != nil {
			return nil, err
		}
		if ev.Type == types.CheckIn {
			perDay[day]++
		}
	}

	if _, err := f.NewSheet(dailySheet); err != nil {
		return nil, fmt.Errorf("new sheet: %w", err)
	}
	if err := writeRow(f, dailySheet, 1, []string{"Date", "Check-ins"}); err != nil {
		return nil, err
	}
	_ = f.SetCellStyle(dailySheet, "A1", "B1", header)

	days := make([]string, 0, len(perDay))
	for d := range perDay {
		days = append(days, d)
	}
	sort.Strings(days)
	for i, d := range days {
		if err := f.SetCellValue(dailySheet, fmt.Sprintf("A%d", i+2), d); err != nil {
			return nil, err
		}
		if err := f.SetCellValue(dailySheet, fmt.Sprintf("B%d", i+2), perDay[d]); err != nil {
			return nil, err
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf, nil
}

func writeRow(f *excelize.File, sheet string, row int, values []string) error {
	for i, v := range values {
		cell, err := excelize.CoordinatesToCellName(i+1, row)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheet, cell, v); err != nil {
			return fmt.Errorf("set %s!%s: %w", sheet, cell, err)
		}
	}
	return nil
}
