package lsp

import (
	"path/filepath"

	json "github.com/goccy/go-json"

	"stanlsp/internal/config"
	"stanlsp/internal/diag"
	"stanlsp/internal/fix"
)

func (s *Server) handleDidChangeConfiguration(msg *rpcMessage) error {
	if len(msg.Params) == 0 {
		return nil
	}
	var params didChangeConfigurationParams
	if err := json.Unmarshal(msg.Params, &params); err != nil {
		return nil
	}
	if len(params.Settings) == 0 || string(params.Settings) == "null" {
		return nil
	}
	overlay, err := config.ParseSettings(params.Settings)
	if err != nil {
		s.log.WithError(err).Warn("ignoring settings")
		return nil
	}
	s.mu.Lock()
	base := s.base
	s.mu.Unlock()
	if _, err := base.Apply(overlay); err != nil {
		s.Notice(diag.SevError, "Invalid stanlsp settings: "+err.Error())
		return nil
	}
	s.mu.Lock()
	s.overlay = overlay
	s.mu.Unlock()
	s.reconfigure()
	return nil
}

// reloadConfigFile re-reads stanlsp.toml after it changed on disk.
func (s *Server) reloadConfigFile() {
	s.mu.Lock()
	root := s.workspaceRoot
	stopped := s.shutdownRequested
	s.mu.Unlock()
	if stopped {
		return
	}
	base, err := s.loadBase(root)
	if err != nil {
		s.Notice(diag.SevError, "stanlsp: "+err.Error())
		return
	}
	s.mu.Lock()
	s.base = base
	s.mu.Unlock()
	s.Log("Configuration file changed, reloading")
	s.reconfigure()
}

// reconfigure recomputes the effective configuration and pushes it to the
// scheduler. The check mode is only re-registered when it actually changed.
func (s *Server) reconfigure() {
	s.mu.Lock()
	prev := s.cfg
	cfg, err := s.base.Apply(s.overlay)
	if err != nil {
		s.mu.Unlock()
		s.log.WithError(err).Warn("keeping previous configuration")
		return
	}
	s.cfg = cfg
	s.fixer = fix.NewIgnoreLine(cfg.IgnoreDirective)
	stopped := s.shutdownRequested
	s.mu.Unlock()

	s.sched.UpdateSettings(cfg.SchedulerSettings())
	if cfg.Debounce != prev.Debounce {
		s.log.WithField("debounce", cfg.Debounce).Warn("debounce change applies after the server restarts")
	}
	if cfg.CacheDir != prev.CacheDir {
		s.log.WithField("cacheDir", cfg.CacheDir).Warn("cacheDir change applies after the server restarts")
	}
	// after shutdown the scheduler stays stopped
	if cfg.WhenToRun != prev.WhenToRun && !stopped {
		s.sched.OnConfigurationChanged(cfg.WhenToRun)
	}
}

func (s *Server) watchConfigFile(cfg config.Config) {
	path := cfg.Path
	if path == "" {
		if cfg.Root == "" {
			return
		}
		path = filepath.Join(cfg.Root, config.FileName)
	}
	w, err := config.Watch(s.baseCtx, path, s.reloadConfigFile, config.WithOnError(func(err error) {
		s.log.WithError(err).Warn("configuration watcher error")
	}))
	if err != nil {
		s.log.WithError(err).WithField("path", path).Warn("failed to watch configuration file")
		return
	}
	s.mu.Lock()
	s.cfgWatcher = w
	s.mu.Unlock()
	s.log.WithField("path", w.Path()).Debug("watching configuration file")
}
