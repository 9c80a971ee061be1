package lsp

import (
	"context"
	"errors"
	"slices"
	"strings"

	json "github.com/goccy/go-json"

	"stanlsp/internal/docs"
	"stanlsp/internal/fileuri"
	"stanlsp/internal/fix"
	"stanlsp/internal/nav"
	"stanlsp/internal/watch"
)

const noMoreErrors = "No more errors"

func (s *Server) handleCodeAction(msg *rpcMessage) error {
	var params codeActionParams
	if err := json.Unmarshal(msg.Params, &params); err != nil {
		return s.sendError(msg.ID, codeInvalidParams, "invalid params")
	}
	actions := []codeAction{}
	if !wantsQuickFix(params.Context.Only) {
		return s.sendResponse(msg.ID, actions)
	}
	uri := fileuri.Canonical(params.TextDocument.URI)
	text, ok := s.docs.Text(uri)
	if !ok {
		return s.sendResponse(msg.ID, actions)
	}
	s.mu.Lock()
	gen := s.fixer
	s.mu.Unlock()
	line := int(params.Range.Start.Line)
	for _, f := range fix.ForLine(gen, text, s.sched.Store().Get(uri), line) {
		actions = append(actions, toCodeAction(params.TextDocument.URI, f))
	}
	return s.sendResponse(msg.ID, actions)
}

func wantsQuickFix(only []string) bool {
	if len(only) == 0 {
		return true
	}
	kind := fix.KindQuickFix.LSP()
	return slices.ContainsFunc(only, func(k string) bool {
		return k == kind || strings.HasPrefix(kind, k+".")
	})
}

func (s *Server) handleJumpToError(msg *rpcMessage) error {
	var params jumpToErrorParams
	if err := json.Unmarshal(msg.Params, &params); err != nil {
		return s.sendError(msg.ID, codeInvalidParams, "invalid params")
	}
	dir, err := nav.ParseDirection(params.Direction)
	if err != nil {
		return s.sendError(msg.ID, codeInvalidParams, err.Error())
	}
	uri := fileuri.Canonical(params.TextDocument.URI)
	target, ok := s.nav.Jump(dir, uri, int(params.Position.Line))
	if !ok {
		s.showMessage(messageInfo, noMoreErrors)
		return s.sendResponse(msg.ID, nil)
	}
	return s.sendResponse(msg.ID, location{
		URI:   target.URI,
		Range: toLSPRange(target.Range()),
	})
}

// handleWatch serves stanlsp/watch. It is normally a notification; when the
// client sends an id the response follows completion.
func (s *Server) handleWatch(msg *rpcMessage) error {
	var params watchParams
	if err := json.Unmarshal(msg.Params, &params); err != nil {
		if len(msg.ID) > 0 {
			return s.sendError(msg.ID, codeInvalidParams, "invalid params")
		}
		s.log.WithError(err).Warn("invalid stanlsp/watch params")
		return nil
	}
	req := watch.Request{Op: watch.Operation(params.Operation), Dirty: params.Dirty}
	if f := params.File; f != nil && f.URI != "" {
		uri := fileuri.Canonical(f.URI)
		lang := f.LanguageID
		if open, ok := s.docs.Get(uri); ok && lang == "" {
			lang = open.LanguageID()
		}
		req.Document = docs.NewSnapshot(uri, lang, 0, f.Content)
	}

	if req.Op == watch.OpCheckProject {
		s.bg.Add(1)
		go func() {
			defer s.bg.Done()
			err := s.sched.HandleRequest(s.baseCtx, req)
			if err != nil && !errors.Is(err, context.Canceled) {
				s.log.WithError(err).Warn("project check failed")
			}
			s.replyWatch(msg.ID, err)
		}()
		return nil
	}
	err := s.sched.HandleRequest(s.baseCtx, req)
	if err != nil && !errors.Is(err, watch.ErrUnsupportedDocument) {
		s.log.WithError(err).WithField("operation", params.Operation).Warn("stanlsp/watch failed")
	}
	return s.replyWatch(msg.ID, err)
}

func (s *Server) replyWatch(id json.RawMessage, err error) error {
	if len(id) == 0 {
		return nil
	}
	if err != nil {
		return s.sendError(id, codeInvalidParams, err.Error())
	}
	return s.sendResponse(id, nil)
}
