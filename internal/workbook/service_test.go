package workbook

import (
	"testing"

	"github.com/rs/zerolog"

	"github.com/th-e-o/budgibot/internal/domain"
	"github.com/th-e-o/budgibot/internal/engine"
	"github.com/th-e-o/budgibot/internal/history"
	"github.com/th-e-o/budgibot/internal/session"
	"github.com/th-e-o/budgibot/internal/spreadsheet"
)

type nopEmitter struct{}

func (nopEmitter) PublishValidation(_, _ []string) {}

func newService(t *testing.T) (*Service, *spreadsheet.Workbook, *session.Controller) {
	t.Helper()
	grid := spreadsheet.NewWorkbook()
	store := history.NewStore(grid, zerolog.Nop())
	applier := engine.NewApplier(grid, store, zerolog.Nop())
	controller := session.NewController(applier, store, nopEmitter{}, zerolog.Nop())
	return NewService(grid, controller, zerolog.Nop()), grid, controller
}

func xlsxFixture(t *testing.T) []byte {
	t.Helper()
	source := spreadsheet.NewWorkbook()
	if err := source.CreateSheet("Budget", 5, 3); err != nil {
		t.Fatalf("failed to create sheet: %v", err)
	}
	if err := source.SetCellValue("Budget", 0, 0, "Total"); err != nil {
		t.Fatalf("failed to set cell: %v", err)
	}
	data, err := spreadsheet.SaveXLSX(source)
	if err != nil {
		t.Fatalf("failed to save fixture: %v", err)
	}
	return data
}

func TestLoadReplacesLiveWorkbook(t *testing.T) {
	service, grid, _ := newService(t)

	if err := service.Load(xlsxFixture(t)); err != nil {
		t.Fatalf("failed to load workbook: %v", err)
	}

	if !grid.HasSheet("Budget") {
		t.Fatal("expected uploaded sheet in live workbook")
	}
	cell, err := grid.Cell("Budget", 0, 0)
	if err != nil {
		t.Fatalf("failed to read cell: %v", err)
	}
	if cell.Value != "Total" {
		t.Fatalf("expected uploaded content, got %+v", cell)
	}
	if !service.HasWorkbook() {
		t.Fatal("expected original copy retained")
	}
}

func TestResetRestoresOriginal(t *testing.T) {
	service, grid, _ := newService(t)
	if err := service.Load(xlsxFixture(t)); err != nil {
		t.Fatalf("failed to load workbook: %v", err)
	}

	if err := grid.SetCellValue("Budget", 0, 0, "modified"); err != nil {
		t.Fatalf("failed to modify cell: %v", err)
	}

	if err := service.Reset(); err != nil {
		t.Fatalf("failed to reset workbook: %v", err)
	}
	cell, err := grid.Cell("Budget", 0, 0)
	if err != nil {
		t.Fatalf("failed to read cell: %v", err)
	}
	if cell.Value != "Total" {
		t.Fatalf("expected original content after reset, got %+v", cell)
	}
}

func TestResetWithoutLoadFails(t *testing.T) {
	service, _, _ := newService(t)
	if err := service.Reset(); err == nil {
		t.Fatal("expected error resetting before any load")
	}
}

func TestLoadDiscardsPendingBatch(t *testing.T) {
	service, grid, controller := newService(t)
	if err := grid.CreateSheet("Scratch", 5, 3); err != nil {
		t.Fatalf("failed to create sheet: %v", err)
	}

	controller.Propose([]domain.Operation{{
		ID:         "a",
		Type:       domain.OpUpdateCell,
		UpdateCell: &domain.UpdateCellPayload{Sheet: "Scratch", Row: 0, Col: 0, Value: 1},
	}})
	if !controller.Pending() {
		t.Fatal("expected a pending batch before reload")
	}

	if err := service.Load(xlsxFixture(t)); err != nil {
		t.Fatalf("failed to load workbook: %v", err)
	}
	if controller.Pending() {
		t.Fatal("expected pending batch discarded by bulk reload")
	}
}

func TestExportRoundTrip(t *testing.T) {
	service, grid, _ := newService(t)
	if err := service.Load(xlsxFixture(t)); err != nil {
		t.Fatalf("failed to load workbook: %v", err)
	}
	if err := grid.SetCellValue("Budget", 1, 0, "extra"); err != nil {
		t.Fatalf("failed to modify cell: %v", err)
	}

	data, err := service.Export()
	if err != nil {
		t.Fatalf("failed to export: %v", err)
	}

	reloaded, err := spreadsheet.LoadXLSX(data)
	if err != nil {
		t.Fatalf("failed to reload export: %v", err)
	}
	cell, err := reloaded.Cell("Budget", 1, 0)
	if err != nil {
		t.Fatalf("failed to read cell: %v", err)
	}
	if cell.Value != "extra" {
		t.Fatalf("expected modification in export, got %+v", cell)
	}
}
