// Package session owns the pending validation batch and the per-operation
// accept/refuse state machine.
package session

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/th-e-o/budgibot/internal/domain"
	"github.com/th-e-o/budgibot/internal/engine"
	"github.com/th-e-o/budgibot/internal/history"
)

// ResultEmitter receives the finalized id partition of a confirmed batch
// and forwards it to the proposing side.
type ResultEmitter interface {
	PublishValidation(accepted, refused []string)
}

// DecisionRecorder persists finalized decisions. Optional; a nil recorder
// disables the audit trail.
type DecisionRecorder interface {
	Record(ctx context.Context, record domain.DecisionRecord) error
}

// Item is the externally visible state of one pending operation.
type Item struct {
	Operation domain.Operation `json:"operation"`
	Status    domain.Status    `json:"status"`
	Applied   bool             `json:"applied"`
}

type item struct {
	op      domain.Operation
	status  domain.Status
	applied bool
}

// Controller orchestrates the validation lifecycle of proposed operation
// batches: speculative apply on arrival, per-item accept/refuse toggles
// with rollback, and the final partition into accepted and refused ids.
type Controller struct {
	applier  *engine.Applier
	history  *history.Store
	emitter  ResultEmitter
	recorder DecisionRecorder
	log      zerolog.Logger

	mu      sync.Mutex
	items   []*item
	loading bool
}

// Option customizes a Controller.
type Option func(*Controller)

// WithRecorder enables the decision audit trail.
func WithRecorder(recorder DecisionRecorder) Option {
	return func(c *Controller) {
		c.recorder = recorder
	}
}

// NewController wires a controller to its collaborators.
func NewController(applier *engine.Applier, hist *history.Store, emitter ResultEmitter, logger zerolog.Logger, opts ...Option) *Controller {
	c := &Controller{
		applier: applier,
		history: hist,
		emitter: emitter,
		log:     logger.With().Str("component", "session").Logger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Propose replaces the current pending batch with the given operations and
// applies every operation speculatively for preview, capturing pre-state
// for rollback. Any prior incomplete batch is dropped along with its
// history entries.
func (c *Controller) Propose(ops []domain.Operation) {
	c.mu.Lock()
	if len(c.items) > 0 {
		c.log.Warn().Int("dropped", len(c.items)).
			Msg("new proposal replaces an unconfirmed batch")
		c.history.DeleteMany(c.itemIDsLocked())
	}

	items := make([]*item, 0, len(ops))
	for _, op := range ops {
		if err := op.Validate(); err != nil {
			c.log.Error().Err(err).Str("op_id", op.ID).Msg("rejecting invalid proposed operation")
			continue
		}
		items = append(items, &item{op: op, status: domain.StatusPending, applied: true})
	}
	c.items = items
	c.mu.Unlock()

	batch := make([]domain.Operation, len(items))
	for i, it := range items {
		batch[i] = it.op
	}
	c.applier.Apply(batch, true)
	c.log.Info().Int("operations", len(batch)).Msg("proposed batch applied for preview")
}

// ApplyDirect executes operations immediately with no validation
// bookkeeping and no history capture.
func (c *Controller) ApplyDirect(ops []domain.Operation) {
	c.applier.Apply(ops, false)
	c.log.Info().Int("operations", len(ops)).Msg("direct updates applied")
}

// Accept marks the operation accepted, re-applying its effect when it had
// been rolled back. It reports whether the transition took place.
func (c *Controller) Accept(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.acceptLocked(id)
}

func (c *Controller) acceptLocked(id string) bool {
	it := c.findLocked(id)
	if it == nil {
		c.log.Warn().Str("op_id", id).Msg("accept for unknown operation id")
		return false
	}
	if it.status == domain.StatusAccepted {
		return true
	}
	if !it.applied {
		// History already holds the pre-state from the first application.
		c.applier.Apply([]domain.Operation{it.op}, false)
		it.applied = true
	}
	it.status = domain.StatusAccepted
	return true
}

// Refuse marks the operation refused, rolling back its live effect first.
// When rollback fails the item keeps its previous status: the status must
// never claim refused while the effect is still live.
func (c *Controller) Refuse(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.refuseLocked(id)
}

func (c *Controller) refuseLocked(id string) bool {
	it := c.findLocked(id)
	if it == nil {
		c.log.Warn().Str("op_id", id).Msg("refuse for unknown operation id")
		return false
	}
	if it.status == domain.StatusRefused {
		return true
	}
	if it.applied {
		if !c.applier.Rollback(it.op) {
			c.log.Warn().Str("op_id", id).Msg("rollback failed, refuse rejected")
			return false
		}
		it.applied = false
	}
	it.status = domain.StatusRefused
	return true
}

// AcceptAll applies the single-item accept transition to every item.
func (c *Controller) AcceptAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, it := range c.items {
		c.acceptLocked(it.op.ID)
	}
}

// RefuseAll applies the single-item refuse transition to every item.
func (c *Controller) RefuseAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, it := range c.items {
		c.refuseLocked(it.op.ID)
	}
}

// CanConfirm reports whether every item in the batch has been decided.
func (c *Controller) CanConfirm() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.canConfirmLocked()
}

func (c *Controller) canConfirmLocked() bool {
	if len(c.items) == 0 {
		return false
	}
	for _, it := range c.items {
		if it.status == domain.StatusPending {
			return false
		}
	}
	return true
}

// Confirm finalizes the batch: it partitions the operation ids into
// accepted and refused in appearance order, emits the result, records the
// decision, and discards the batch's history. Calling it while items are
// still pending is a no-op; the controller never emits a partial commit.
func (c *Controller) Confirm(ctx context.Context) (accepted, refused []string, ok bool) {
	c.mu.Lock()
	if !c.canConfirmLocked() {
		c.mu.Unlock()
		c.log.Warn().Msg("confirm ignored, batch is empty or still has pending items")
		return nil, nil, false
	}

	all := c.itemIDsLocked()
	for _, it := range c.items {
		if it.status == domain.StatusAccepted {
			accepted = append(accepted, it.op.ID)
		} else {
			refused = append(refused, it.op.ID)
		}
	}
	c.items = nil
	c.mu.Unlock()

	if c.emitter != nil {
		c.emitter.PublishValidation(accepted, refused)
	}
	if c.recorder != nil {
		record := domain.NewDecisionRecord(accepted, refused)
		if err := c.recorder.Record(ctx, record); err != nil {
			c.log.Error().Err(err).Msg("failed to record validation decision")
		}
	}

	// Once committed, rollback is no longer meaningful for any id.
	c.history.DeleteMany(all)
	c.log.Info().Int("accepted", len(accepted)).Int("refused", len(refused)).
		Msg("validation batch confirmed")
	return accepted, refused, true
}

// Discard drops the pending batch without emitting a result, rolling back
// every still-applied operation in reverse order first.
func (c *Controller) Discard() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i := len(c.items) - 1; i >= 0; i-- {
		it := c.items[i]
		if it.applied && c.applier.Rollback(it.op) {
			it.applied = false
		}
	}
	c.history.DeleteMany(c.itemIDsLocked())
	c.items = nil
	c.log.Info().Msg("validation batch discarded")
}

// Pending reports whether a batch is awaiting decisions.
func (c *Controller) Pending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items) > 0
}

// Items returns a copy of the batch's current per-operation state in
// appearance order.
func (c *Controller) Items() []Item {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Item, len(c.items))
	for i, it := range c.items {
		out[i] = Item{Operation: it.op, Status: it.status, Applied: it.applied}
	}
	return out
}

// SetLoading flags a bulk workbook reload in progress so user-edit capture
// can be suppressed for its duration.
func (c *Controller) SetLoading(loading bool) {
	c.mu.Lock()
	c.loading = loading
	c.mu.Unlock()
}

// SuppressUserEdits reports whether workbook change events must not be
// treated as user edits right now: during programmatic apply/rollback,
// during a bulk reload, or while a batch is pending.
func (c *Controller) SuppressUserEdits() bool {
	if c.applier.InProgress() {
		return true
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loading || len(c.items) > 0
}

func (c *Controller) findLocked(id string) *item {
	for _, it := range c.items {
		if it.op.ID == id {
			return it
		}
	}
	return nil
}

func (c *Controller) itemIDsLocked() []string {
	ids := make([]string, len(c.items))
	for i, it := range c.items {
		ids[i] = it.op.ID
	}
	return ids
}
