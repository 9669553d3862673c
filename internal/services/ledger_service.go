package services

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"dailyledger/internal/amqp"
	"dailyledger/internal/cache"
	"dailyledger/internal/core"
	"dailyledger/internal/ledger"
	"dailyledger/internal/log"
	"dailyledger/internal/metrics"
	"dailyledger/internal/schema"
	"dailyledger/internal/sheets"
)

const defaultStoreTimeout = 15 * time.Second

// Publisher announces appended rows. *amqp.Client satisfies it.
type Publisher interface {
	PublishRowAppended(ctx context.Context, msg *amqp.RowAppendedMessage) error
}

// EntryRules constrains what Append accepts and how it writes the row.
type EntryRules struct {
	Categories          map[core.Kind][]string
	PaymentMethods      []string
	IncomePaymentMethod string
	KindCells           map[core.Kind]string
}

func (r EntryRules) kindCell(k core.Kind) string {
	if c := r.KindCells[k]; c != "" {
		return c
	}
	return string(k)
}

// Options wires a LedgerService. Store is required; nil collaborators get
// defaults and a nil Publisher disables change events.
type Options struct {
	Store        sheets.Store
	Materializer *ledger.Materializer
	Aggregator   *ledger.Aggregator
	Projector    *ledger.Projector
	Rules        EntryRules
	Summary      ledger.SummaryLabels
	Publisher    Publisher
	Metrics      *metrics.Metrics
	Logger       *log.Logger
	Clock        core.Clock
	CacheTTL     time.Duration
	StoreTimeout time.Duration
}

// Snapshot is one materialized read of the store.
type Snapshot struct {
	Ledger   ledger.Ledger
	LoadedAt time.Time
	// Stale is set when the store could not be read and an earlier
	// snapshot is served instead.
	Stale bool
}

type ReportResult struct {
	Report   ledger.Report
	Table    ledger.Table
	LoadedAt time.Time
	Stale    bool
}

type MonthlyResult struct {
	Months   []ledger.MonthSummary
	LoadedAt time.Time
	Stale    bool
}

type AppendResult struct {
	RowRef string
	Cells  []string
}

// LedgerService serves reports from a cached snapshot of the store and
// appends new rows. A confirmed append invalidates the snapshot, so the next
// read on any path reflects it.
type LedgerService struct {
	store        sheets.Store
	materializer *ledger.Materializer
	aggregator   *ledger.Aggregator
	projector    *ledger.Projector
	rules        EntryRules
	summary      ledger.SummaryLabels
	publisher    Publisher
	metrics      *metrics.Metrics
	logger       *log.Logger
	clock        core.Clock
	storeTimeout time.Duration

	cache *cache.Snapshot[Snapshot]
	loads singleflight.Group
}

func NewLedgerService(opts Options) (*LedgerService, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("ledger service: store is required")
	}
	s := &LedgerService{
		store:        opts.Store,
		materializer: opts.Materializer,
		aggregator:   opts.Aggregator,
		projector:    opts.Projector,
		rules:        opts.Rules,
		summary:      opts.Summary,
		publisher:    opts.Publisher,
		metrics:      opts.Metrics,
		logger:       opts.Logger,
		clock:        opts.Clock,
		storeTimeout: opts.StoreTimeout,
	}
	if s.materializer == nil {
		s.materializer = ledger.NewMaterializer(ledger.Options{Observer: opts.Metrics})
	}
	if s.aggregator == nil {
		s.aggregator = ledger.NewAggregator(ledger.DefaultUncategorized)
	}
	if s.projector == nil {
		s.projector = ledger.NewProjector(ledger.DefaultColumns(), ledger.DefaultFormat())
	}
	if s.summary == (ledger.SummaryLabels{}) {
		s.summary = ledger.DefaultSummaryLabels()
	}
	if s.logger == nil {
		s.logger = log.Discard()
	}
	s.logger = s.logger.WithComponent(log.ComponentLedger)
	if s.clock == nil {
		s.clock = core.SystemClock(time.UTC)
	}
	if s.storeTimeout <= 0 {
		s.storeTimeout = defaultStoreTimeout
	}
	s.cache = cache.NewSnapshot[Snapshot](opts.CacheTTL, s.clock.Now)
	return s, nil
}

// Snapshot returns the cached ledger, reading the store when the cache is
// empty, expired or invalidated. Concurrent misses share one read. When the
// read fails and an earlier snapshot exists, that snapshot is returned with
// Stale set, alongside the *core.StoreError.
func (s *LedgerService) Snapshot(ctx context.Context) (Snapshot, error) {
	if snap, ok := s.cache.Get(); ok {
		s.metrics.CacheEvent(metrics.CacheHit)
		return snap, nil
	}
	s.metrics.CacheEvent(metrics.CacheMiss)

	gen := s.cache.Generation()
	v, err, _ := s.loads.Do(strconv.FormatUint(gen, 10), func() (any, error) {
		if snap, ok := s.cache.Get(); ok {
			return snap, nil
		}
		return s.load(ctx, gen)
	})
	if err != nil {
		if prev, _, ok := s.cache.Last(); ok {
			s.metrics.CacheEvent(metrics.CacheStaleServed)
			s.logger.WarnContext(ctx, "Serving stale ledger snapshot",
				log.FieldStale, true,
				log.FieldError, err)
			prev.Stale = true
			return prev, err
		}
		return Snapshot{}, err
	}
	return v.(Snapshot), nil
}

// load reads and materializes the store. It runs detached from the caller's
// cancellation since other callers may be waiting on the same read.
func (s *LedgerService) load(ctx context.Context, gen uint64) (Snapshot, error) {
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.storeTimeout)
	defer cancel()

	start := time.Now()
	rows, err := s.store.ReadAll(rctx)
	s.metrics.ObserveStore(log.OpRead, time.Since(start), err)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to read ledger store",
			log.NewFields().WithOperation(log.OpRead).WithErrorType(log.ErrorTypeStore).WithError(err).ToSlice()...)
		return Snapshot{}, &core.StoreError{Op: log.OpRead, Err: err}
	}

	l := s.materializer.Materialize(rows)
	s.metrics.RowsMaterialized(len(l.Transactions))
	for _, is := range l.Issues {
		s.logger.DebugContext(ctx, "Cell fell back to default",
			log.NewFields().WithIssue(is.Row, string(is.Field), is.Raw, is.Reason).ToSlice()...)
	}
	if missing := l.Schema.Missing(); len(missing) > 0 {
		s.logger.DebugContext(ctx, "Store lacks canonical columns", "missing", missing)
	}
	s.logger.InfoContext(ctx, "Ledger snapshot loaded",
		log.FieldRows, len(rows),
		log.FieldTransactions, len(l.Transactions),
		log.FieldIssues, len(l.Issues))

	snap := Snapshot{Ledger: l, LoadedAt: s.clock.Now()}
	if !s.cache.Set(gen, snap) {
		s.metrics.CacheEvent(metrics.CacheSetDropped)
	}
	return snap, nil
}

// Invalidate drops the cached snapshot.
func (s *LedgerService) Invalidate() {
	s.cache.Invalidate()
	s.metrics.CacheEvent(metrics.CacheInvalidated)
}

// DefaultRange is the current calendar month in the service clock's zone.
func (s *LedgerService) DefaultRange() ledger.Query {
	start, end := core.MonthBounds(s.clock.Now())
	return ledger.Query{Start: start, End: end}
}

// Today is the current calendar date in the service clock's zone.
func (s *LedgerService) Today() core.Date {
	return core.DateOf(s.clock.Now())
}

// Report filters and aggregates the snapshot for q and projects the matching
// rows, newest first. A store failure with a prior snapshot yields a Stale
// result together with the error.
func (s *LedgerService) Report(ctx context.Context, q ledger.Query) (ReportResult, error) {
	if err := q.Validate(); err != nil {
		return ReportResult{}, err
	}
	snap, err := s.Snapshot(ctx)
	if err != nil && !snap.Stale {
		return ReportResult{}, err
	}

	r, aerr := s.aggregator.Aggregate(snap.Ledger, q)
	if aerr != nil {
		return ReportResult{}, aerr
	}
	s.logger.DebugContext(ctx, "Report computed",
		log.NewFields().WithOperation(log.OpAggregate).WithRange(q.Start.String(), q.End.String()).ToSlice()...)
	return ReportResult{
		Report:   r,
		Table:    s.projector.Project(snap.Ledger, r.Filtered),
		LoadedAt: snap.LoadedAt,
		Stale:    snap.Stale,
	}, err
}

// Listing projects every transaction, unfiltered, with every source column
// including the ones outside the canonical set. Rows with an unresolved date
// are listed last.
func (s *LedgerService) Listing(ctx context.Context) (ledger.Table, Snapshot, error) {
	snap, err := s.Snapshot(ctx)
	if err != nil && !snap.Stale {
		return ledger.Table{}, snap, err
	}
	return s.projector.ProjectRaw(snap.Ledger, snap.Ledger.Transactions), snap, err
}

// Monthly groups the snapshot by calendar month.
func (s *LedgerService) Monthly(ctx context.Context) (MonthlyResult, error) {
	snap, err := s.Snapshot(ctx)
	if err != nil && !snap.Stale {
		return MonthlyResult{}, err
	}
	return MonthlyResult{
		Months:   ledger.Monthly(snap.Ledger),
		LoadedAt: snap.LoadedAt,
		Stale:    snap.Stale,
	}, err
}

// ExportCSV writes the report table for q to w. Exports are never built from
// a stale snapshot.
func (s *LedgerService) ExportCSV(ctx context.Context, w io.Writer, q ledger.Query) error {
	res, err := s.Report(ctx, q)
	if err != nil {
		return err
	}
	if err := ledger.WriteCSV(w, res.Table); err != nil {
		return fmt.Errorf("write csv: %w", err)
	}
	return nil
}

// Document builds the printable report for q.
func (s *LedgerService) Document(ctx context.Context, title string, q ledger.Query) (ledger.Document, error) {
	res, err := s.Report(ctx, q)
	if err != nil {
		return ledger.Document{}, err
	}
	return ledger.BuildDocument(title, res.Report, res.Table, s.projector.Format, s.summary), nil
}

// Format is the display format used for projections.
func (s *LedgerService) Format() ledger.Format {
	return s.projector.Format
}

// Rules returns the entry constraints, for populating input forms.
func (s *LedgerService) Rules() EntryRules {
	return s.rules
}

// Append validates e, writes it as one row attributed to recordedBy and
// invalidates the snapshot once the store confirms the write. Income rows
// take the fixed income payment method and carry no bill number or location.
func (s *LedgerService) Append(ctx context.Context, recordedBy string, e core.Entry) (AppendResult, error) {
	recordedBy = strings.TrimSpace(recordedBy)
	e, err := s.validateEntry(recordedBy, e)
	if err != nil {
		s.logger.WarnContext(ctx, "Entry rejected",
			log.NewFields().WithOperation(log.OpValidate).WithErrorType(log.ErrorTypeValidation).WithError(err).ToSlice()...)
		return AppendResult{}, err
	}

	values := []any{
		e.Date.String(),
		recordedBy,
		s.rules.kindCell(e.Kind),
		e.Category,
		e.Amount.StringFixed(2),
		e.PaymentMethod,
		e.BillNo,
		e.Location,
		e.Remarks,
	}

	actx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()
	start := time.Now()
	ref, err := s.store.AppendRow(actx, values)
	s.metrics.ObserveStore(log.OpAppend, time.Since(start), err)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to append entry",
			log.NewFields().WithOperation(log.OpAppend).WithErrorType(log.ErrorTypeStore).WithError(err).ToSlice()...)
		return AppendResult{}, &core.StoreError{Op: log.OpAppend, Err: err}
	}
	s.Invalidate()

	cells := sheets.Cells(values)
	s.logger.InfoContext(ctx, "Entry appended",
		log.NewFields().
			WithEntry(string(e.Kind), e.Category, cells[4], recordedBy).
			WithOperation(log.OpAppend).
			ToSlice()...)

	if err := s.publish(ctx, ref, recordedBy, cells); err != nil {
		// The row is stored; the event is best effort.
		s.logger.WarnContext(ctx, "Failed to publish row appended event",
			log.FieldRowRef, ref,
			log.FieldError, err)
	}
	return AppendResult{RowRef: ref, Cells: cells}, nil
}

func (s *LedgerService) publish(ctx context.Context, ref, recordedBy string, cells []string) error {
	if s.publisher == nil {
		return nil
	}
	return s.publisher.PublishRowAppended(ctx, amqp.NewRowAppendedMessage(ref, recordedBy, cells))
}

func (s *LedgerService) validateEntry(recordedBy string, e core.Entry) (core.Entry, error) {
	if recordedBy == "" {
		return e, &core.ValidationError{Field: string(core.FieldRecordedBy), Err: core.ErrMissingIdentity}
	}
	if !e.Kind.Valid() {
		return e, &core.ValidationError{Field: string(core.FieldKind), Value: string(e.Kind), Err: core.ErrUnknownKind}
	}
	if !e.Date.Resolved() {
		return e, &core.ValidationError{Field: string(core.FieldDate), Err: core.ErrUnresolvedDate}
	}
	e.Amount = e.Amount.Round(2)
	if !e.Amount.IsPositive() {
		return e, &core.ValidationError{Field: string(core.FieldAmount), Value: e.Amount.String(), Err: core.ErrInvalidAmount}
	}

	e.Category = strings.TrimSpace(e.Category)
	if allowed := s.rules.Categories[e.Kind]; len(allowed) > 0 {
		c, ok := pick(allowed, e.Category)
		if !ok {
			return e, &core.ValidationError{Field: string(core.FieldCategory), Value: e.Category, Err: core.ErrUnknownCategory}
		}
		e.Category = c
	}

	if e.Kind == core.Income {
		e.PaymentMethod = s.rules.IncomePaymentMethod
		e.BillNo = ""
		e.Location = ""
	} else {
		e.PaymentMethod = strings.TrimSpace(e.PaymentMethod)
		if e.PaymentMethod != "" && len(s.rules.PaymentMethods) > 0 {
			p, ok := pick(s.rules.PaymentMethods, e.PaymentMethod)
			if !ok {
				return e, &core.ValidationError{Field: string(core.FieldPaymentMethod), Value: e.PaymentMethod, Err: core.ErrUnknownPayment}
			}
			e.PaymentMethod = p
		}
		e.BillNo = strings.TrimSpace(e.BillNo)
		e.Location = strings.TrimSpace(e.Location)
	}
	e.Remarks = strings.TrimSpace(e.Remarks)
	return e, nil
}

// pick returns the configured spelling of v, matched case-insensitively.
func pick(allowed []string, v string) (string, bool) {
	key := schema.Fold(v)
	for _, a := range allowed {
		if schema.Fold(a) == key {
			return a, true
		}
	}
	return "", false
}
