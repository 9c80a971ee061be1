package watch

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"stanlsp/internal/analyzer"
	"stanlsp/internal/debounce"
	"stanlsp/internal/diag"
	"stanlsp/internal/docs"
	"stanlsp/internal/trace"
)

// DefaultTimeout bounds one analyzer run when Options.Timeout is unset.
const DefaultTimeout = 30 * time.Second

// Sink is the write path to the editor's visible diagnostics.
type Sink interface {
	Publish(uri string, diags []diag.Diagnostic)
}

// Reporter receives human-readable progress lines and user-facing notices.
type Reporter interface {
	Log(msg string)
	Notice(sev diag.Severity, msg string)
}

// ErrorCache remembers the last raw errors per file so a reopened document
// shows them before a fresh check finishes.
type ErrorCache interface {
	Load(uri string) ([]diag.RawError, bool)
	Save(uri string, errs []diag.RawError)
	Forget(uri string)
	DropAll() error
}

// Settings are the scheduler knobs that may change at runtime.
type Settings struct {
	Timeout     time.Duration
	Languages   []string
	Extensions  []string
	Root        string
	Paths       []string
	ProjectJobs int
}

// Options wires a Scheduler to its collaborators. Docs, Invoker and Store
// are required.
type Options struct {
	Docs     docs.Source
	Invoker  analyzer.Invoker
	Store    *diag.Store
	Sink     Sink
	Reporter Reporter
	Cache    ErrorCache
	Logger   *logrus.Entry
	Tracer   trace.Tracer
	// Debounce is the single quiescence window shared by every file.
	Debounce time.Duration
	Settings Settings
}

type state uint8

const (
	stateStopped state = iota
	stateWatching
)

// Scheduler decides when files are analysed and applies the results.
//
// Lifecycle events arrive from a docs.Source. Checks run on their own
// goroutines; results are applied one at a time and only when they belong to
// the latest generation requested for their file.
type Scheduler struct {
	docs     docs.Source
	invoker  analyzer.Invoker
	store    *diag.Store
	sink     Sink
	reporter Reporter
	cache    ErrorCache
	log      *logrus.Entry
	tracer   trace.Tracer
	debounce *debounce.Debouncer

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	state    state
	closed   bool
	mode     Mode
	subs     []docs.Subscription
	settings Settings

	genMu sync.Mutex
	gens  map[string]uint64

	// applyMu serializes every store mutation so generation checks and the
	// writes they guard are atomic.
	applyMu sync.Mutex

	inflight sync.WaitGroup
}

// New builds a stopped Scheduler.
func New(opts Options) *Scheduler {
	log := opts.Logger
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	tracer := opts.Tracer
	if tracer == nil {
		tracer = trace.Nop
	}
	store := opts.Store
	if store == nil {
		store = diag.NewStore()
	}
	sink := opts.Sink
	if sink == nil {
		sink = nopSink{}
	}
	reporter := opts.Reporter
	if reporter == nil {
		reporter = logReporter{log: log}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		docs:     opts.Docs,
		invoker:  opts.Invoker,
		store:    store,
		sink:     sink,
		reporter: reporter,
		cache:    opts.Cache,
		log:      log,
		tracer:   tracer,
		debounce: debounce.New(opts.Debounce),
		ctx:      ctx,
		cancel:   cancel,
		settings: normalizeSettings(opts.Settings),
		gens:     make(map[string]uint64),
	}
}

func normalizeSettings(s Settings) Settings {
	if s.Timeout <= 0 {
		s.Timeout = DefaultTimeout
	}
	if len(s.Languages) == 0 {
		s.Languages = []string{"php"}
	}
	if len(s.Extensions) == 0 {
		s.Extensions = []string{".php"}
	}
	if len(s.Paths) == 0 {
		s.Paths = []string{"."}
	}
	if s.ProjectJobs <= 0 {
		s.ProjectJobs = 4
	}
	return s
}

// Store returns the diagnostic store the scheduler writes to.
func (s *Scheduler) Store() *diag.Store {
	return s.store
}

// Mode returns the active trigger mode.
func (s *Scheduler) Mode() Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// Watching reports whether the scheduler holds lifecycle subscriptions.
func (s *Scheduler) Watching() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == stateWatching
}

// UpdateSettings replaces the runtime knobs. Checks already running keep
// the timeout they started with.
func (s *Scheduler) UpdateSettings(set Settings) {
	s.mu.Lock()
	s.settings = normalizeSettings(set)
	s.mu.Unlock()
}

func (s *Scheduler) currentSettings() Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings
}

// Start subscribes to lifecycle events for mode, dropping any previous
// subscriptions and pending debounced check first. Calling it again is a
// restart.
func (s *Scheduler) Start(mode Mode) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.disposeLocked()
	relevant := RelevantEvents(mode)

	// Open and Close are always observed: Open re-displays cached errors and
	// Close clears diagnostics. They schedule checks only when relevant.
	s.subs = append(s.subs,
		s.docs.Subscribe(docs.EventOpen, func(d docs.Document) { s.onOpened(d, relevant.Has(docs.EventOpen)) }),
		s.docs.Subscribe(docs.EventClose, s.onClosed),
	)
	if relevant.Has(docs.EventSave) {
		s.subs = append(s.subs, s.docs.Subscribe(docs.EventSave, s.onSaved))
	}
	if relevant.Has(docs.EventChange) {
		s.subs = append(s.subs, s.docs.Subscribe(docs.EventChange, s.onChanged))
	}

	s.mode = mode
	s.state = stateWatching
	s.log.WithFields(logrus.Fields{"mode": mode.String(), "events": relevant.String()}).Debug("watching documents")
	trace.Point(s.tracer, trace.ScopeServer, "start", mode.String(), 0)
}

// OnConfigurationChanged re-registers handlers for newMode. In-flight checks
// are left to finish.
func (s *Scheduler) OnConfigurationChanged(newMode Mode) {
	s.reporter.Log("WhenToRun setting changed, re-registering handlers")
	s.Start(newMode)
}

// Stop drops every subscription and the pending debounced check.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disposeLocked()
	s.state = stateStopped
}

func (s *Scheduler) disposeLocked() {
	for _, sub := range s.subs {
		sub.Dispose()
	}
	s.subs = nil
	s.debounce.Cancel()
}

// Close stops the scheduler, cancels running analyzer processes and waits
// for their goroutines to return.
func (s *Scheduler) Close() {
	s.mu.Lock()
	s.disposeLocked()
	s.state = stateStopped
	s.closed = true
	s.mu.Unlock()
	s.debounce.Dispose()
	s.cancel()
	s.inflight.Wait()
}

// track registers one check goroutine. It refuses once Close has begun so
// inflight never grows while Close waits on it.
func (s *Scheduler) track() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.inflight.Add(1)
	return true
}

// Wait blocks until every launched check has been applied or discarded.
func (s *Scheduler) Wait() {
	s.inflight.Wait()
}

// Supports reports whether documents of languageID are analysable.
func (s *Scheduler) Supports(languageID string) bool {
	return slices.Contains(s.currentSettings().Languages, languageID)
}

func (s *Scheduler) onSaved(doc docs.Document) {
	if !s.Supports(doc.LanguageID()) {
		return
	}
	trace.Point(s.tracer, trace.ScopeEvent, "save", doc.URI(), 0)
	s.reporter.Log("Document saved, checking")
	s.launch(doc, false)
}

func (s *Scheduler) onChanged(doc docs.Document) {
	if !s.Supports(doc.LanguageID()) {
		return
	}
	trace.Point(s.tracer, trace.ScopeEvent, "change", doc.URI(), 0)
	s.reporter.Log("Document changed, checking")
	uri, lang := doc.URI(), doc.LanguageID()
	s.debounce.Debounce(func() {
		// The check reflects the buffer at fire time, not the edit that
		// scheduled it.
		text, ok := s.docs.Text(uri)
		if !ok {
			return
		}
		s.launch(docs.NewSnapshot(uri, lang, 0, text), true)
	})
}

func (s *Scheduler) onOpened(doc docs.Document, check bool) {
	if !s.Supports(doc.LanguageID()) {
		return
	}
	trace.Point(s.tracer, trace.ScopeEvent, "open", doc.URI(), 0)
	s.redisplay(doc)
	if !check {
		return
	}
	s.reporter.Log("Document opened, checking")
	s.launch(doc, false)
}

func (s *Scheduler) onClosed(doc docs.Document) {
	trace.Point(s.tracer, trace.ScopeEvent, "close", doc.URI(), 0)
	s.clearFile(doc.URI())
}

// redisplay publishes cached errors mapped against the reopened text.
func (s *Scheduler) redisplay(doc docs.Document) {
	if s.cache == nil {
		return
	}
	raw, ok := s.cache.Load(doc.URI())
	if !ok || len(raw) == 0 {
		return
	}
	s.applyMu.Lock()
	defer s.applyMu.Unlock()
	// A fresh result may already be applied.
	if len(s.store.Get(doc.URI())) > 0 {
		return
	}
	mapped := diag.Map(raw, doc.Text(), true)
	s.store.ReplaceAll(doc.URI(), mapped)
	s.sink.Publish(doc.URI(), mapped)
}

// OnExternalCheckRequest checks doc now when forceImmediate is set, and
// otherwise through the shared debounce window.
func (s *Scheduler) OnExternalCheckRequest(doc docs.Document, dirty, forceImmediate bool) {
	if forceImmediate {
		s.launch(doc, dirty)
		return
	}
	snapshot := docs.NewSnapshot(doc.URI(), doc.LanguageID(), 0, doc.Text())
	s.debounce.Debounce(func() { s.launch(snapshot, dirty) })
}

// launch starts a check on its own goroutine.
func (s *Scheduler) launch(doc docs.Document, dirty bool) {
	if !s.track() {
		return
	}
	gen := s.nextGen(doc.URI())
	go func() {
		defer s.inflight.Done()
		s.checkFile(doc, dirty, gen)
	}()
}

func (s *Scheduler) nextGen(uri string) uint64 {
	s.genMu.Lock()
	defer s.genMu.Unlock()
	s.gens[uri]++
	return s.gens[uri]
}

func (s *Scheduler) isLatest(uri string, gen uint64) bool {
	s.genMu.Lock()
	defer s.genMu.Unlock()
	return s.gens[uri] == gen
}

// checkFile runs the analyzer for doc and applies the outcome if gen is
// still the newest request for the file. It reports the applied status.
func (s *Scheduler) checkFile(doc docs.Document, dirty bool, gen uint64) string {
	uri := doc.URI()
	log := s.log.WithFields(logrus.Fields{"uri": uri, "gen": gen})
	span := trace.Begin(s.tracer, trace.ScopeCheck, "check", 0).
		WithExtra("uri", uri).
		WithExtra("gen", strconv.FormatUint(gen, 10))

	ctx, cancel := context.WithTimeout(s.ctx, s.currentSettings().Timeout)
	ctx = trace.WithSpan(trace.WithTracer(ctx, s.tracer), span)
	raw, err := s.invoker.Check(ctx, analyzer.Request{
		URI:        uri,
		Content:    doc.Text(),
		LanguageID: doc.LanguageID(),
		Dirty:      dirty,
	})
	cancel()

	s.applyMu.Lock()
	defer s.applyMu.Unlock()

	status := s.applyLocked(uri, gen, raw, err, log)
	span.WithExtra("status", status).End(status)
	return status
}

const (
	statusOK      = "ok"
	statusFailed  = "failed"
	statusMissing = "missing"
	statusStale   = "stale"
)

func (s *Scheduler) applyLocked(uri string, gen uint64, raw []diag.RawError, err error, log *logrus.Entry) string {
	if !s.isLatest(uri, gen) {
		log.Debug("discarding stale check result")
		return statusStale
	}
	if err != nil {
		if analyzer.IsMissingFile(err) {
			log.Debug("file no longer exists, clearing diagnostics")
			s.dropLocked(uri)
			return statusMissing
		}
		if s.ctx.Err() != nil {
			return statusFailed
		}
		log.WithError(err).Warn("analyzer run failed")
		trace.Error(s.tracer, trace.ScopeCheck, "check", err, 0)
		s.reporter.Notice(diag.SevWarning, failureNotice(err))
		return statusFailed
	}

	text, known := s.docs.Text(uri)
	mapped := diag.Map(raw, text, known)
	s.store.ReplaceAll(uri, mapped)
	if s.cache != nil {
		if len(raw) == 0 {
			s.cache.Forget(uri)
		} else {
			s.cache.Save(uri, raw)
		}
	}
	s.sink.Publish(uri, mapped)
	log.WithField("count", len(mapped)).Debug("diagnostics applied")
	return statusOK
}

func failureNotice(err error) string {
	if errors.Is(err, analyzer.ErrTimeout) {
		return "PHPStan timed out, keeping previous results"
	}
	return fmt.Sprintf("PHPStan failed: %v", err)
}

// clearFile drops diagnostics for uri and invalidates checks in flight so a
// late completion cannot restore them.
func (s *Scheduler) clearFile(uri string) {
	s.applyMu.Lock()
	defer s.applyMu.Unlock()
	s.nextGen(uri)
	s.store.Clear(uri)
	s.sink.Publish(uri, nil)
}

// dropLocked clears the store, the cache and the editor for uri.
func (s *Scheduler) dropLocked(uri string) {
	s.store.Clear(uri)
	if s.cache != nil {
		s.cache.Forget(uri)
	}
	s.sink.Publish(uri, nil)
}

type nopSink struct{}

func (nopSink) Publish(string, []diag.Diagnostic) {}

// logReporter is used when no editor is attached.
type logReporter struct {
	log *logrus.Entry
}

func (r logReporter) Log(msg string) { r.log.Info(msg) }

func (r logReporter) Notice(sev diag.Severity, msg string) {
	switch sev {
	case diag.SevError:
		r.log.Error(msg)
	case diag.SevWarning:
		r.log.Warn(msg)
	default:
		r.log.Info(msg)
	}
}
