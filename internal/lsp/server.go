package lsp

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sync"

	json "github.com/goccy/go-json"
	"github.com/sirupsen/logrus"

	"stanlsp/internal/analyzer"
	"stanlsp/internal/cache"
	"stanlsp/internal/config"
	"stanlsp/internal/diag"
	"stanlsp/internal/docs"
	"stanlsp/internal/fileuri"
	"stanlsp/internal/fix"
	"stanlsp/internal/logging"
	"stanlsp/internal/nav"
	"stanlsp/internal/trace"
	"stanlsp/internal/version"
	"stanlsp/internal/watch"
)

var (
	// ErrExit signals a graceful shutdown after receiving "exit".
	ErrExit = errors.New("lsp exit")
	// ErrExitWithoutShutdown signals an "exit" without a preceding "shutdown".
	ErrExitWithoutShutdown = errors.New("lsp exit without shutdown")
)

const codeServerNotInitialized = -32002

// ServerOptions configures LSP server behavior.
type ServerOptions struct {
	// Overrides are laid over stanlsp.toml and under editor settings.
	Overrides config.Overlay
	// ConfigPath forces a configuration file instead of searching upwards
	// from the workspace root.
	ConfigPath string
	// Invoker replaces the PHPStan runner.
	Invoker analyzer.Invoker
	// Cache replaces the on-disk error cache.
	Cache  watch.ErrorCache
	Logger *logrus.Entry
	Tracer trace.Tracer
	// WatchConfig reloads stanlsp.toml when it changes on disk.
	WatchConfig bool
}

// Server handles stdio JSON-RPC for stanlsp.
type Server struct {
	in     *bufio.Reader
	out    *bufio.Writer
	sendMu sync.Mutex
	opts   ServerOptions
	log    *logrus.Entry
	tracer trace.Tracer

	docs  *docs.Registry
	sched *watch.Scheduler
	nav   *nav.Navigator

	mu                sync.Mutex
	base              config.Config
	overlay           config.Overlay
	cfg               config.Config
	fixer             fix.Generator
	workspaceRoot     string
	shutdownRequested bool
	published         map[string]struct{}
	cfgWatcher        *config.Watcher

	baseCtx context.Context
	cancel  context.CancelFunc
	bg      sync.WaitGroup
}

// NewServer constructs a new LSP server.
func NewServer(in io.Reader, out io.Writer, opts ServerOptions) *Server {
	cfg := config.Default("")
	log := opts.Logger
	if log == nil {
		log = logging.NewLogger("lsp")
	}
	tracer := opts.Tracer
	if tracer == nil {
		tracer = trace.Nop
	}
	return &Server{
		in:        bufio.NewReader(in),
		out:       bufio.NewWriter(out),
		opts:      opts,
		log:       log,
		tracer:    tracer,
		docs:      docs.NewRegistry(),
		base:      cfg,
		cfg:       cfg,
		fixer:     fix.NewIgnoreLine(cfg.IgnoreDirective),
		published: make(map[string]struct{}),
		baseCtx:   context.Background(),
		cancel:    func() {},
	}
}

// Run serves LSP requests until exit or EOF.
func (s *Server) Run(ctx context.Context) error {
	ctx = trace.WithTracer(ctx, s.tracer)
	s.baseCtx, s.cancel = context.WithCancel(ctx)
	defer s.close()
	for {
		payload, err := readMessage(s.in)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		var msg rpcMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			s.log.WithError(err).Warn("failed to parse message")
			continue
		}
		if msg.Method == "" {
			continue
		}
		if err := s.handleMessage(&msg); err != nil {
			return err
		}
	}
}

func (s *Server) close() {
	s.cancel()
	s.mu.Lock()
	w := s.cfgWatcher
	s.cfgWatcher = nil
	s.mu.Unlock()
	if w != nil {
		w.Stop()
	}
	if s.sched != nil {
		s.sched.Close()
	}
	s.bg.Wait()
}

func (s *Server) handleMessage(msg *rpcMessage) error {
	span := trace.Begin(s.tracer, trace.ScopeServer, msg.Method, 0)
	defer span.End("")

	if s.sched == nil && msg.Method != "initialize" && msg.Method != "exit" {
		if len(msg.ID) > 0 {
			return s.sendError(msg.ID, codeServerNotInitialized, "server not initialized")
		}
		return nil
	}
	switch msg.Method {
	case "initialize":
		return s.handleInitialize(msg)
	case "initialized":
		return s.handleInitialized()
	case "shutdown":
		return s.handleShutdown(msg)
	case "exit":
		s.mu.Lock()
		requested := s.shutdownRequested
		s.mu.Unlock()
		if requested {
			return ErrExit
		}
		return ErrExitWithoutShutdown
	case "workspace/didChangeConfiguration":
		return s.handleDidChangeConfiguration(msg)
	case "textDocument/didOpen":
		return s.handleDidOpen(msg)
	case "textDocument/didChange":
		return s.handleDidChange(msg)
	case "textDocument/didSave":
		return s.handleDidSave(msg)
	case "textDocument/didClose":
		return s.handleDidClose(msg)
	case "textDocument/codeAction":
		return s.handleCodeAction(msg)
	case "stanlsp/jumpToError":
		return s.handleJumpToError(msg)
	case "stanlsp/watch":
		return s.handleWatch(msg)
	case "$/cancelRequest", "$/setTrace":
		return nil
	default:
		if len(msg.ID) > 0 {
			return s.sendError(msg.ID, codeMethodNotFound, "method not found")
		}
		return nil
	}
}

func (s *Server) handleInitialize(msg *rpcMessage) error {
	var params initializeParams
	if len(msg.Params) > 0 {
		if err := json.Unmarshal(msg.Params, &params); err != nil {
			return s.sendError(msg.ID, codeInvalidParams, "invalid params")
		}
	}
	if s.sched != nil {
		return s.sendError(msg.ID, codeInvalidParams, "server already initialized")
	}
	root := ""
	if params.RootURI != "" {
		root = fileuri.ToPath(params.RootURI)
	}
	if root == "" && params.RootPath != "" {
		root = params.RootPath
	}
	if root == "" && len(params.WorkspaceFolders) > 0 {
		root = fileuri.ToPath(params.WorkspaceFolders[0].URI)
	}
	if root != "" {
		if abs, err := filepath.Abs(root); err == nil {
			root = abs
		}
	}

	base, err := s.loadBase(root)
	if err != nil {
		s.log.WithError(err).Warn("failed to load configuration, using defaults")
		s.showMessage(messageError, "stanlsp: "+err.Error())
	}
	var overlay config.Overlay
	if len(params.InitializationOptions) > 0 && string(params.InitializationOptions) != "null" {
		if o, err := config.ParseSettings(params.InitializationOptions); err != nil {
			s.log.WithError(err).Warn("ignoring initializationOptions")
		} else {
			overlay = o
		}
	}
	cfg, err := base.Apply(overlay)
	if err != nil {
		s.log.WithError(err).Warn("ignoring initializationOptions")
		cfg, overlay = base, config.Overlay{}
	}

	s.mu.Lock()
	s.workspaceRoot = root
	s.base = base
	s.overlay = overlay
	s.cfg = cfg
	s.fixer = fix.NewIgnoreLine(cfg.IgnoreDirective)
	s.mu.Unlock()

	s.sched = s.newScheduler(cfg)
	s.nav = nav.New(s.sched.Store())
	s.log.WithFields(logrus.Fields{
		"root":   root,
		"config": cfg.Path,
		"mode":   cfg.WhenToRun.String(),
	}).Info("initialized workspace")

	result := initializeResult{
		Capabilities: serverCapabilities{
			TextDocumentSync: textDocumentSyncOptions{
				OpenClose: true,
				Change:    2,
				Save: saveOptions{
					IncludeText: true,
				},
			},
			CodeActionProvider: &codeActionOptions{
				CodeActionKinds: []string{fix.KindQuickFix.LSP()},
			},
		},
		ServerInfo: &serverInfo{Name: "stanlsp", Version: version.Version},
	}
	return s.sendResponse(msg.ID, result)
}

// loadBase resolves defaults, stanlsp.toml and the server overrides.
func (s *Server) loadBase(root string) (config.Config, error) {
	cfg, err := config.Load(root, s.opts.ConfigPath)
	if err != nil {
		return cfg, err
	}
	return cfg.Apply(s.opts.Overrides)
}

func (s *Server) newScheduler(cfg config.Config) *watch.Scheduler {
	invoker := s.opts.Invoker
	if invoker == nil {
		invoker = analyzer.InvokerFunc(s.runPHPStan)
	}
	return watch.New(watch.Options{
		Docs:     s.docs,
		Invoker:  invoker,
		Store:    diag.NewStore(),
		Sink:     s,
		Reporter: s,
		Cache:    s.errorCache(cfg),
		Logger:   logging.NewLogger("watch"),
		Tracer:   s.tracer,
		Debounce: cfg.Debounce,
		Settings: cfg.SchedulerSettings(),
	})
}

func (s *Server) errorCache(cfg config.Config) watch.ErrorCache {
	if s.opts.Cache != nil {
		return s.opts.Cache
	}
	if cfg.CacheDir == "" {
		return cache.NewMemory()
	}
	c, err := cache.Open(cfg.CacheDir, logging.NewLogger("cache"))
	if err != nil {
		s.log.WithError(err).Warn("error cache kept in memory only")
		return cache.NewMemory()
	}
	return c
}

// runPHPStan checks one file with the current configuration so settings
// changes apply to the next run.
func (s *Server) runPHPStan(ctx context.Context, req analyzer.Request) ([]diag.RawError, error) {
	s.mu.Lock()
	cfg := s.cfg
	s.mu.Unlock()
	return analyzer.NewPHPStan(cfg.AnalyzerOptions(logging.NewLogger("phpstan"))).Check(ctx, req)
}

func (s *Server) handleInitialized() error {
	s.mu.Lock()
	cfg := s.cfg
	s.mu.Unlock()
	s.sched.Start(cfg.WhenToRun)
	if s.opts.WatchConfig {
		s.watchConfigFile(cfg)
	}
	return nil
}

func (s *Server) handleShutdown(msg *rpcMessage) error {
	s.mu.Lock()
	s.shutdownRequested = true
	s.mu.Unlock()
	s.sched.Stop()
	s.clearPublishedDiagnostics()
	return s.sendResponse(msg.ID, nil)
}

func (s *Server) handleDidOpen(msg *rpcMessage) error {
	var params didOpenTextDocumentParams
	if err := json.Unmarshal(msg.Params, &params); err != nil {
		return err
	}
	uri := fileuri.Canonical(params.TextDocument.URI)
	if uri == "" {
		return nil
	}
	s.docs.Open(uri, params.TextDocument.LanguageID, params.TextDocument.Version, params.TextDocument.Text)
	return nil
}

func (s *Server) handleDidChange(msg *rpcMessage) error {
	var params didChangeTextDocumentParams
	if err := json.Unmarshal(msg.Params, &params); err != nil {
		return err
	}
	uri := fileuri.Canonical(params.TextDocument.URI)
	if uri == "" {
		return nil
	}
	text, ok := s.docs.Text(uri)
	if !ok {
		s.log.WithField("uri", uri).Debug("didChange for unopened document")
		return nil
	}
	s.docs.Change(uri, params.TextDocument.Version, applyChanges(text, params.ContentChanges))
	return nil
}

func (s *Server) handleDidSave(msg *rpcMessage) error {
	var params didSaveTextDocumentParams
	if err := json.Unmarshal(msg.Params, &params); err != nil {
		return err
	}
	uri := fileuri.Canonical(params.TextDocument.URI)
	if uri == "" {
		return nil
	}
	s.docs.Save(uri, params.Text)
	return nil
}

func (s *Server) handleDidClose(msg *rpcMessage) error {
	var params didCloseTextDocumentParams
	if err := json.Unmarshal(msg.Params, &params); err != nil {
		return err
	}
	uri := fileuri.Canonical(params.TextDocument.URI)
	if uri == "" {
		return nil
	}
	s.docs.Close(uri)
	return nil
}

// Publish implements watch.Sink.
func (s *Server) Publish(uri string, diags []diag.Diagnostic) {
	s.mu.Lock()
	if len(diags) == 0 {
		delete(s.published, uri)
	} else {
		s.published[uri] = struct{}{}
	}
	s.mu.Unlock()
	if err := s.sendPublish(uri, toLSPDiagnostics(diags)); err != nil {
		s.log.WithError(err).WithField("uri", uri).Warn("failed to publish diagnostics")
	}
}

// Log implements watch.Reporter by mirroring progress to the client's
// output channel.
func (s *Server) Log(message string) {
	s.log.Info(message)
	if err := s.sendNotification("window/logMessage", messageParams{Type: messageLog, Message: message}); err != nil {
		s.log.WithError(err).Debug("failed to send logMessage")
	}
}

// Notice implements watch.Reporter.
func (s *Server) Notice(sev diag.Severity, message string) {
	kind := messageInfo
	switch sev {
	case diag.SevError:
		kind = messageError
		s.log.Error(message)
	case diag.SevWarning:
		kind = messageWarning
		s.log.Warn(message)
	default:
		s.log.Info(message)
	}
	s.showMessage(kind, message)
}

func (s *Server) showMessage(kind int, message string) {
	if err := s.sendNotification("window/showMessage", messageParams{Type: kind, Message: message}); err != nil {
		s.log.WithError(err).Debug("failed to send showMessage")
	}
}

func (s *Server) clearPublishedDiagnostics() {
	s.mu.Lock()
	uris := make([]string, 0, len(s.published))
	for uri := range s.published {
		uris = append(uris, uri)
	}
	s.published = make(map[string]struct{})
	s.mu.Unlock()
	for _, uri := range uris {
		if err := s.sendPublish(uri, nil); err != nil {
			s.log.WithError(err).Warn("failed to clear diagnostics")
		}
	}
}

func (s *Server) sendResponse(id json.RawMessage, result any) error {
	msg := map[string]any{
		"jsonrpc": "2.0",
		"id":      json.RawMessage(id),
		"result":  result,
	}
	return s.send(msg)
}

func (s *Server) sendError(id json.RawMessage, code int, message string) error {
	msg := map[string]any{
		"jsonrpc": "2.0",
		"id":      json.RawMessage(id),
		"error": rpcError{
			Code:    code,
			Message: message,
		},
	}
	return s.send(msg)
}

func (s *Server) sendNotification(method string, params any) error {
	msg := map[string]any{
		"jsonrpc": "2.0",
		"method":  method,
		"params":  params,
	}
	return s.send(msg)
}

func (s *Server) sendPublish(uri string, list []lspDiagnostic) error {
	if list == nil {
		list = []lspDiagnostic{}
	}
	return s.sendNotification("textDocument/publishDiagnostics", publishDiagnosticsParams{
		URI:         uri,
		Diagnostics: list,
	})
}

func (s *Server) send(msg any) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	if err := writeMessage(s.out, payload); err != nil {
		return err
	}
	return s.out.Flush()
}
