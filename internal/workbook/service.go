// Package workbook manages the xlsx backing of the live workbook: loading
// an uploaded file, exporting the current state, and restoring the
// original copy.
package workbook

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/th-e-o/budgibot/internal/domain"
	"github.com/th-e-o/budgibot/internal/session"
	"github.com/th-e-o/budgibot/internal/spreadsheet"
)

// Service owns the original file bytes and performs bulk reloads of the
// live workbook in place.
type Service struct {
	grid       *spreadsheet.Workbook
	controller *session.Controller
	log        zerolog.Logger

	mu       sync.Mutex
	original []byte
}

// NewService wires the service to the live workbook and the session
// controller whose loading guard it toggles during bulk reloads.
func NewService(grid *spreadsheet.Workbook, controller *session.Controller, logger zerolog.Logger) *Service {
	return &Service{
		grid:       grid,
		controller: controller,
		log:        logger.With().Str("component", "workbook").Logger(),
	}
}

// Load parses the uploaded xlsx bytes and replaces the live workbook
// content. The bytes are retained as the original copy for Reset. Any
// pending validation batch is discarded first.
func (s *Service) Load(data []byte) error {
	if err := s.reload(data); err != nil {
		return err
	}

	s.mu.Lock()
	s.original = append([]byte(nil), data...)
	s.mu.Unlock()

	s.log.Info().Int("bytes", len(data)).Msg("workbook loaded, original copy retained")
	return nil
}

// Reset discards all changes and restores the workbook to the originally
// loaded file.
func (s *Service) Reset() error {
	s.mu.Lock()
	original := s.original
	s.mu.Unlock()

	if len(original) == 0 {
		return fmt.Errorf("no original workbook to reset to")
	}
	if err := s.reload(original); err != nil {
		return err
	}
	s.log.Info().Msg("workbook reset to its original state")
	return nil
}

func (s *Service) reload(data []byte) error {
	loaded, err := spreadsheet.LoadXLSX(data)
	if err != nil {
		return fmt.Errorf("failed to parse workbook: %w", err)
	}

	s.controller.SetLoading(true)
	defer s.controller.SetLoading(false)

	if s.controller.Pending() {
		s.log.Warn().Msg("bulk reload discards the pending validation batch")
		s.controller.Discard()
	}
	s.grid.Reset(loaded.SnapshotAll())
	return nil
}

// Export serializes the current workbook state to xlsx bytes.
func (s *Service) Export() ([]byte, error) {
	data, err := spreadsheet.SaveXLSX(s.grid)
	if err != nil {
		return nil, fmt.Errorf("failed to export workbook: %w", err)
	}
	return data, nil
}

// Snapshots returns the current full sheet snapshots in workbook order.
func (s *Service) Snapshots() []domain.SheetSnapshot {
	return s.grid.SnapshotAll()
}

// HasWorkbook reports whether an original file has been loaded.
func (s *Service) HasWorkbook() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.original) > 0
}
