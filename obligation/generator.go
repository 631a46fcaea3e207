/*
generator.go - Schedule expansion: definitions -> period entries

PURPOSE:
  Turns a definition's recurrence rule into one pending entry per due
  period, up to a requested period. Generation is lazy and idempotent:
  call it as often as you like, existing entries are never touched.

HOW IT WORKS:
  1. Range starts at the later of the definition's start month and the
     newest period already generated for it
  2. Each period in range is kept if the cadence says it's due and the
     definition hasn't ended before the period starts
  3. Amounts are copied from the definition into the new entries
  4. The store writes the batch, skipping (definition, period) pairs that
     already exist; those count as Skipped

  Two concurrent calls for the same definition both succeed and the
  store's uniqueness guarantee keeps exactly one entry per period.

CADENCE:
  Counted from the start month, not the calendar: a quarterly definition
  starting in February is due Feb, May, Aug, Nov.

SEE ALSO:
  - period.go: DueDate clamping
  - store.go: InsertEntries contract
*/
package obligation

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/warp/obligation-engine/logging"
)

// MaxGenerateSpan bounds how many periods a single Generate call may walk.
const MaxGenerateSpan = 600

// DefaultGenerateConcurrency is used when Generator.Concurrency is unset.
const DefaultGenerateConcurrency = 4

// =============================================================================
// CADENCE
// =============================================================================

// Cadence decides whether a period is due relative to a start period.
type Cadence interface {
	Due(start, p Period) bool
}

type everyNMonths int

func (n everyNMonths) Due(start, p Period) bool {
	d := p.MonthsSince(start)
	return d >= 0 && d%int(n) == 0
}

var cadences = map[Frequency]Cadence{
	FrequencyMonthly:   everyNMonths(1),
	FrequencyQuarterly: everyNMonths(3),
	FrequencyYearly:    everyNMonths(12),
}

// CadenceFor returns the cadence for a frequency.
func CadenceFor(f Frequency) (Cadence, error) {
	c, ok := cadences[f]
	if !ok {
		return nil, &ValidationError{Field: "frequency", Message: fmt.Sprintf("unknown frequency %q", f)}
	}
	return c, nil
}

// Schedule returns the due periods of def in [from, to].
func Schedule(def Definition, from, to Period) ([]Period, error) {
	cadence, err := CadenceFor(def.Frequency)
	if err != nil {
		return nil, err
	}
	start := PeriodOf(def.StartDate)
	if from.Before(start) {
		from = start
	}

	var periods []Period
	for p := from; !p.After(to); p = p.Next() {
		if def.EndDate != nil && def.EndDate.Before(p.Start()) {
			break
		}
		if cadence.Due(start, p) {
			periods = append(periods, p)
		}
	}
	return periods, nil
}

// NewEntry builds the pending entry def produces for period p.
func NewEntry(def Definition, p Period, now Clock) Entry {
	at := now.Now()
	return Entry{
		ID:           EntryID(uuid.NewString()),
		DefinitionID: def.ID,
		KindID:       def.KindID(),
		PartyID:      def.PartyID,
		PartyName:    def.PartyName,
		Category:     def.Category,
		Period:       p,
		DueDate:      p.DueDate(def.AnchorDay),
		Base:         PendingChannel(def.ChannelAmount(ChannelBase)),
		Incentive:    PendingChannel(def.ChannelAmount(ChannelIncentive)),
		Reward:       PendingChannel(def.ChannelAmount(ChannelReward)),
		CreatedAt:    at,
		UpdatedAt:    at,
	}
}

// =============================================================================
// GENERATOR
// =============================================================================

// GenerateResult counts what a generation call did.
type GenerateResult struct {
	Created int `json:"created"`
	Skipped int `json:"skipped"`
}

func (r GenerateResult) add(o GenerateResult) GenerateResult {
	return GenerateResult{Created: r.Created + o.Created, Skipped: r.Skipped + o.Skipped}
}

// Generator expands definitions into entries.
type Generator struct {
	store Store
	log   *logging.Logger

	Clock       Clock
	Concurrency int // definitions generated in parallel by GenerateAll
}

func NewGenerator(store Store, logger *logging.Logger) *Generator {
	return &Generator{
		store:       store,
		log:         logger.WithComponent(logging.ComponentGenerator),
		Concurrency: DefaultGenerateConcurrency,
	}
}

// Generate creates the missing entries of def up to and including upto.
// Inactive and paused definitions generate nothing.
func (g *Generator) Generate(ctx context.Context, def Definition, upto Period) (GenerateResult, error) {
	if def.Status != StatusActive {
		return GenerateResult{}, nil
	}
	if err := def.Validate(); err != nil {
		return GenerateResult{}, err
	}

	from := PeriodOf(def.StartDate)
	last, ok, err := g.store.LatestPeriod(ctx, def.ID)
	if err != nil {
		return GenerateResult{}, fmt.Errorf("latest period for %s: %w", def.ID, err)
	}
	if ok && last.After(from) {
		from = last
	}
	if upto.Before(from) {
		return GenerateResult{}, nil
	}
	if span := upto.MonthsSince(from); span > MaxGenerateSpan {
		return GenerateResult{}, &ValidationError{
			Field:   "period",
			Message: fmt.Sprintf("%s is %d periods past %s, limit is %d", upto, span, from, MaxGenerateSpan),
		}
	}

	periods, err := Schedule(def, from, upto)
	if err != nil {
		return GenerateResult{}, err
	}
	if len(periods) == 0 {
		return GenerateResult{}, nil
	}

	entries := make([]Entry, 0, len(periods))
	for _, p := range periods {
		entries = append(entries, NewEntry(def, p, g.Clock))
	}
	created, err := g.store.InsertEntries(ctx, entries)
	if err != nil {
		return GenerateResult{}, fmt.Errorf("insert entries for %s: %w", def.ID, err)
	}

	res := GenerateResult{Created: created, Skipped: len(entries) - created}
	if res.Created > 0 {
		g.log.DebugContext(ctx, "entries generated",
			logging.FieldDefinitionID, def.ID,
			logging.FieldPeriod, upto.Key(),
			logging.FieldCreated, res.Created,
			logging.FieldSkipped, res.Skipped,
		)
	}
	return res, nil
}

// GenerateDefinition loads a definition by ID and generates it.
func (g *Generator) GenerateDefinition(ctx context.Context, id DefinitionID, upto Period) (GenerateResult, error) {
	def, err := g.store.GetDefinition(ctx, id)
	if err != nil {
		return GenerateResult{}, err
	}
	return g.Generate(ctx, *def, upto)
}

// GenerateAll generates every active definition of a kind (all kinds when
// kindID is empty) up to upto.
func (g *Generator) GenerateAll(ctx context.Context, kindID string, upto Period) (GenerateResult, error) {
	return g.GenerateMatching(ctx, DefinitionFilter{KindID: kindID}, upto)
}

// GenerateMatching generates every active definition passing filter.
// Definitions are processed concurrently; the first error cancels the rest.
func (g *Generator) GenerateMatching(ctx context.Context, filter DefinitionFilter, upto Period) (GenerateResult, error) {
	filter.Status = StatusActive
	defs, err := g.store.ListDefinitions(ctx, filter)
	if err != nil {
		return GenerateResult{}, fmt.Errorf("list definitions: %w", err)
	}

	limit := g.Concurrency
	if limit <= 0 {
		limit = DefaultGenerateConcurrency
	}

	var (
		mu    sync.Mutex
		total GenerateResult
	)
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(limit)
	for _, def := range defs {
		def := def
		eg.Go(func() error {
			res, err := g.Generate(egCtx, def, upto)
			if err != nil {
				return err
			}
			mu.Lock()
			total = total.add(res)
			mu.Unlock()
			return nil
		})
	}
	err = eg.Wait()

	g.log.InfoContext(ctx, "generation finished",
		logging.FieldKind, filter.KindID,
		logging.FieldPeriod, upto.Key(),
		"definitions", len(defs),
		logging.FieldCreated, total.Created,
		logging.FieldSkipped, total.Skipped,
	)
	return total, err
}
