// Package report exports generated availability as spreadsheets for
// tenant-facing review.
package report

import (
	"context"
	"fmt"
	"io"
	"sort"

	"github.com/xuri/excelize/v2"

	"slotforge/internal/model"
)

// SlotSource reads generated slots for export.
type SlotSource interface {
	ListSlots(ctx context.Context, tenantID, locationID int64, kind model.ScopeKind, fromDate, toDate string) ([]model.GeneratedSlot, error)
}

// Exporter builds availability workbooks, one sheet per unit.
type Exporter struct {
	source SlotSource
}

// NewExporter creates an exporter.
func NewExporter(source SlotSource) *Exporter {
	return &Exporter{source: source}
}

var headerColumns = []string{"Date", "Status", "Start", "End", "Duration (min)"}

// WriteWorkbook writes an .xlsx document covering [fromDate, toDate] for one
// location scope to w.
func (e *Exporter) WriteWorkbook(ctx context.Context, w io.Writer, tenantID, locationID int64, kind model.ScopeKind, fromDate, toDate string) error {
	allSlots, err := e.source.ListSlots(ctx, tenantID, locationID, kind, fromDate, toDate)
	if err != nil {
		return fmt.Errorf("list slots: %w", err)
	}

	byUnit := make(map[int64][]model.GeneratedSlot)
	var unitIDs []int64
	for _, s := range allSlots {
		if _, seen := byUnit[s.UnitID]; !seen {
			unitIDs = append(unitIDs, s.UnitID)
		}
		byUnit[s.UnitID] = append(byUnit[s.UnitID], s)
	}
	sort.Slice(unitIDs, func(i, j int) bool { return unitIDs[i] < unitIDs[j] })

	file := excelize.NewFile()
	defer file.Close()

	headerStyle, err := file.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("create style: %w", err)
	}

	if len(unitIDs) == 0 {
		if err := writeSheet(file, "No data", headerStyle, nil); err != nil {
			return err
		}
	}

	for i, unitID := range unitIDs {
		name := fmt.Sprintf("%s %d", kind, unitID)
		if len(name) > 31 {
			name = name[:31]
		}
		if i == 0 {
			file.SetSheetName("Sheet1", name)
		} else {
			if _, err := file.NewSheet(name); err != nil {
				return fmt.Errorf("create sheet %s: %w", name, err)
			}
		}
		if err := fillSheet(file, name, headerStyle, byUnit[unitID]); err != nil {
			return err
		}
	}

	return file.Write(w)
}

func writeSheet(file *excelize.File, name string, headerStyle int, slots []model.GeneratedSlot) error {
	file.SetSheetName("Sheet1", name)
	return fillSheet(file, name, headerStyle, slots)
}

func fillSheet(file *excelize.File, sheet string, headerStyle int, slots []model.GeneratedSlot) error {
	for i, col := range headerColumns {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return err
		}
		if err := file.SetCellValue(sheet, cell, col); err != nil {
			return err
		}
	}
	startCell, _ := excelize.CoordinatesToCellName(1, 1)
	endCell, _ := excelize.CoordinatesToCellName(len(headerColumns), 1)
	_ = file.SetCellStyle(sheet, startCell, endCell, headerStyle)

	for row, s := range slots {
		values := []any{s.Date, "open", s.StartAt.Format("15:04"), s.EndAt.Format("15:04"), s.ServiceDuration}
		if s.IsClosed {
			values = []any{s.Date, "closed", "", "", ""}
		}
		for col, val := range values {
			cell, err := excelize.CoordinatesToCellName(col+1, row+2)
			if err != nil {
				return err
			}
			if err := file.SetCellValue(sheet, cell, val); err != nil {
				return err
			}
		}
	}
	return nil
}
