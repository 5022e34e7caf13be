package session

import (
	"context"
	"testing"

	"github.com/rs/zerolog"

	"github.com/th-e-o/budgibot/internal/domain"
	"github.com/th-e-o/budgibot/internal/engine"
	"github.com/th-e-o/budgibot/internal/history"
	"github.com/th-e-o/budgibot/internal/spreadsheet"
)

type stubEmitter struct {
	accepted []string
	refused  []string
	calls    int
}

func (s *stubEmitter) PublishValidation(accepted, refused []string) {
	s.accepted = accepted
	s.refused = refused
	s.calls++
}

type stubRecorder struct {
	records []domain.DecisionRecord
	err     error
}

func (s *stubRecorder) Record(_ context.Context, record domain.DecisionRecord) error {
	s.records = append(s.records, record)
	return s.err
}

type fixture struct {
	grid       *spreadsheet.Workbook
	store      *history.Store
	emitter    *stubEmitter
	controller *Controller
}

func newFixture(t *testing.T, sheets ...string) *fixture {
	t.Helper()
	grid := spreadsheet.NewWorkbook()
	for _, name := range sheets {
		if err := grid.CreateSheet(name, 10, 5); err != nil {
			t.Fatalf("failed to create sheet %q: %v", name, err)
		}
	}
	store := history.NewStore(grid, zerolog.Nop())
	applier := engine.NewApplier(grid, store, zerolog.Nop())
	emitter := &stubEmitter{}
	return &fixture{
		grid:       grid,
		store:      store,
		emitter:    emitter,
		controller: NewController(applier, store, emitter, zerolog.Nop()),
	}
}

func cellUpdate(id, sheet string, row, col int, value any) domain.Operation {
	return domain.Operation{
		ID:         id,
		Type:       domain.OpUpdateCell,
		UpdateCell: &domain.UpdateCellPayload{Sheet: sheet, Row: row, Col: col, Value: value},
	}
}

func createSheet(id, name string) domain.Operation {
	return domain.Operation{
		ID:          id,
		Type:        domain.OpCreateSheet,
		CreateSheet: &domain.CreateSheetPayload{SheetName: name},
	}
}

func TestProposeAppliesImmediately(t *testing.T) {
	f := newFixture(t, "Budget")

	f.controller.Propose([]domain.Operation{cellUpdate("a", "Budget", 0, 0, "preview")})

	cell, err := f.grid.Cell("Budget", 0, 0)
	if err != nil {
		t.Fatalf("failed to read cell: %v", err)
	}
	if cell.Value != "preview" {
		t.Fatalf("expected speculative apply on arrival, got %+v", cell)
	}

	items := f.controller.Items()
	if len(items) != 1 {
		t.Fatalf("expected one item, got %d", len(items))
	}
	if items[0].Status != domain.StatusPending || !items[0].Applied {
		t.Fatalf("expected pending/applied initial state, got %+v", items[0])
	}
}

func TestToggleRefusedThenAcceptedIsIdempotent(t *testing.T) {
	f := newFixture(t, "Budget")

	f.controller.Propose([]domain.Operation{createSheet("c", "Foo")})
	if !f.grid.HasSheet("Foo") {
		t.Fatal("expected sheet created for preview")
	}

	if !f.controller.Refuse("c") {
		t.Fatal("expected refuse to succeed")
	}
	if f.grid.HasSheet("Foo") {
		t.Fatal("expected sheet deleted on refuse")
	}

	if !f.controller.Accept("c") {
		t.Fatal("expected accept to succeed")
	}

	count := 0
	for _, name := range f.grid.SheetNames() {
		if name == "Foo" {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("expected exactly one Foo sheet after re-accept, got %d", count)
	}
}

func TestRefuseRestoresPriorState(t *testing.T) {
	f := newFixture(t, "Budget")
	if err := f.grid.SetCellFormula("Budget", 0, 0, "=B1+1"); err != nil {
		t.Fatalf("failed to seed formula: %v", err)
	}

	f.controller.Propose([]domain.Operation{cellUpdate("u", "Budget", 0, 0, 5)})
	if !f.controller.Refuse("u") {
		t.Fatal("expected refuse to succeed")
	}

	cell, err := f.grid.Cell("Budget", 0, 0)
	if err != nil {
		t.Fatalf("failed to read cell: %v", err)
	}
	if cell.Formula != "=B1+1" {
		t.Fatalf("expected original formula restored, got %+v", cell)
	}

	items := f.controller.Items()
	if items[0].Status != domain.StatusRefused || items[0].Applied {
		t.Fatalf("expected refused/not-applied, got %+v", items[0])
	}
}

func TestRefuseRejectedWhenRollbackFails(t *testing.T) {
	f := newFixture(t, "Budget")

	// The target sheet does not exist, so capture fails and the item has no
	// history entry to roll back to.
	f.controller.Propose([]domain.Operation{cellUpdate("bad", "Missing", 0, 0, 1)})

	if f.controller.Refuse("bad") {
		t.Fatal("expected refuse to be rejected when rollback is impossible")
	}

	items := f.controller.Items()
	if items[0].Status != domain.StatusPending {
		t.Fatalf("expected status unchanged, got %s", items[0].Status)
	}
	if !items[0].Applied {
		t.Fatal("expected applied flag unchanged")
	}
}

func TestConfirmPartitionIsExhaustiveAndDisjoint(t *testing.T) {
	f := newFixture(t, "Budget")

	ops := []domain.Operation{
		cellUpdate("a", "Budget", 0, 0, 1),
		cellUpdate("b", "Budget", 0, 1, 2),
		cellUpdate("c", "Budget", 0, 2, 3),
	}
	f.controller.Propose(ops)

	f.controller.Accept("a")
	f.controller.Refuse("b")
	f.controller.Accept("c")

	if !f.controller.CanConfirm() {
		t.Fatal("expected batch to be confirmable")
	}
	accepted, refused, ok := f.controller.Confirm(context.Background())
	if !ok {
		t.Fatal("expected confirm to succeed")
	}

	seen := map[string]int{}
	for _, id := range accepted {
		seen[id]++
	}
	for _, id := range refused {
		seen[id]++
	}
	if len(seen) != 3 {
		t.Fatalf("partition not exhaustive: %v + %v", accepted, refused)
	}
	for id, n := range seen {
		if n != 1 {
			t.Fatalf("id %s appears %d times across the partition", id, n)
		}
	}
	if len(accepted) != 2 || accepted[0] != "a" || accepted[1] != "c" {
		t.Fatalf("expected accepted [a c] in appearance order, got %v", accepted)
	}
	if len(refused) != 1 || refused[0] != "b" {
		t.Fatalf("expected refused [b], got %v", refused)
	}

	if f.emitter.calls != 1 {
		t.Fatalf("expected one emitted result, got %d", f.emitter.calls)
	}
}

func TestConfirmIgnoredWhilePending(t *testing.T) {
	f := newFixture(t, "Budget")

	f.controller.Propose([]domain.Operation{
		cellUpdate("a", "Budget", 0, 0, 1),
		cellUpdate("b", "Budget", 0, 1, 2),
	})
	f.controller.Accept("a")

	if _, _, ok := f.controller.Confirm(context.Background()); ok {
		t.Fatal("expected confirm to be a no-op while items are pending")
	}
	if f.emitter.calls != 0 {
		t.Fatal("expected no partial commit to be emitted")
	}
	if !f.controller.Pending() {
		t.Fatal("expected batch to remain pending")
	}
}

func TestConfirmClearsHistoryForAllIDs(t *testing.T) {
	f := newFixture(t, "Budget")

	f.controller.Propose([]domain.Operation{
		cellUpdate("a", "Budget", 0, 0, 1),
		cellUpdate("b", "Budget", 0, 1, 2),
	})
	f.controller.Accept("a")
	f.controller.Refuse("b")

	if _, _, ok := f.controller.Confirm(context.Background()); !ok {
		t.Fatal("expected confirm to succeed")
	}
	if f.store.Has("a") || f.store.Has("b") {
		t.Fatal("expected history cleared for accepted and refused ids alike")
	}
	if f.controller.Pending() {
		t.Fatal("expected batch cleared after confirm")
	}
}

func TestNewBatchReplacesUnconfirmedBatch(t *testing.T) {
	f := newFixture(t, "Budget")

	f.controller.Propose([]domain.Operation{cellUpdate("old", "Budget", 0, 0, 1)})
	f.controller.Propose([]domain.Operation{cellUpdate("new", "Budget", 0, 1, 2)})

	if f.store.Has("old") {
		t.Fatal("expected history of the replaced batch to be dropped")
	}
	if !f.store.Has("new") {
		t.Fatal("expected history for the new batch")
	}

	items := f.controller.Items()
	if len(items) != 1 || items[0].Operation.ID != "new" {
		t.Fatalf("expected only the new batch to be pending, got %+v", items)
	}
}

func TestAcceptAllAndRefuseAll(t *testing.T) {
	f := newFixture(t, "Budget")
	if err := f.grid.SetCellValue("Budget", 0, 0, "x"); err != nil {
		t.Fatalf("failed to seed cell: %v", err)
	}

	f.controller.Propose([]domain.Operation{
		cellUpdate("a", "Budget", 0, 0, 1),
		cellUpdate("b", "Budget", 0, 1, 2),
	})

	f.controller.RefuseAll()
	for _, it := range f.controller.Items() {
		if it.Status != domain.StatusRefused || it.Applied {
			t.Fatalf("expected all items refused and rolled back, got %+v", it)
		}
	}
	cell, _ := f.grid.Cell("Budget", 0, 0)
	if cell.Value != "x" {
		t.Fatalf("expected original value back after refuse all, got %+v", cell)
	}

	f.controller.AcceptAll()
	for _, it := range f.controller.Items() {
		if it.Status != domain.StatusAccepted || !it.Applied {
			t.Fatalf("expected all items accepted and re-applied, got %+v", it)
		}
	}
	cell, _ = f.grid.Cell("Budget", 0, 0)
	if cell.Value != 1 {
		t.Fatalf("expected proposed value back after accept all, got %+v", cell)
	}
}

func TestDiscardRollsBackAndClears(t *testing.T) {
	f := newFixture(t, "Budget")
	if err := f.grid.SetCellValue("Budget", 0, 0, "keep"); err != nil {
		t.Fatalf("failed to seed cell: %v", err)
	}

	f.controller.Propose([]domain.Operation{cellUpdate("a", "Budget", 0, 0, "drop")})
	f.controller.Discard()

	cell, _ := f.grid.Cell("Budget", 0, 0)
	if cell.Value != "keep" {
		t.Fatalf("expected discard to roll back the preview, got %+v", cell)
	}
	if f.controller.Pending() || f.store.Len() != 0 {
		t.Fatal("expected batch and history cleared after discard")
	}
	if f.emitter.calls != 0 {
		t.Fatal("expected no result emitted on discard")
	}
}

func TestConfirmRecordsDecision(t *testing.T) {
	f := newFixture(t, "Budget")
	recorder := &stubRecorder{}
	store := f.store
	applier := engine.NewApplier(f.grid, store, zerolog.Nop())
	controller := NewController(applier, store, f.emitter, zerolog.Nop(), WithRecorder(recorder))

	controller.Propose([]domain.Operation{cellUpdate("a", "Budget", 0, 0, 1)})
	controller.Accept("a")
	if _, _, ok := controller.Confirm(context.Background()); !ok {
		t.Fatal("expected confirm to succeed")
	}

	if len(recorder.records) != 1 {
		t.Fatalf("expected one recorded decision, got %d", len(recorder.records))
	}
	record := recorder.records[0]
	if record.OperationCount != 1 || len(record.Accepted) != 1 || record.Accepted[0] != "a" {
		t.Fatalf("unexpected decision record: %+v", record)
	}
}

func TestSuppressUserEditsWhileBatchPending(t *testing.T) {
	f := newFixture(t, "Budget")

	if f.controller.SuppressUserEdits() {
		t.Fatal("expected no suppression with no batch")
	}

	f.controller.Propose([]domain.Operation{cellUpdate("a", "Budget", 0, 0, 1)})
	if !f.controller.SuppressUserEdits() {
		t.Fatal("expected suppression while a batch is pending")
	}

	f.controller.AcceptAll()
	if _, _, ok := f.controller.Confirm(context.Background()); !ok {
		t.Fatal("expected confirm to succeed")
	}
	if f.controller.SuppressUserEdits() {
		t.Fatal("expected suppression lifted after confirm")
	}

	f.controller.SetLoading(true)
	if !f.controller.SuppressUserEdits() {
		t.Fatal("expected suppression during a bulk reload")
	}
}
