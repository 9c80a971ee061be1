package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/fatih/color"
	json "github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"stanlsp/internal/analyzer"
	"stanlsp/internal/config"
	"stanlsp/internal/diag"
	"stanlsp/internal/fix"
	"stanlsp/internal/logging"
	"stanlsp/internal/trace"
)

// errIssuesFound makes the process exit with status 1 without printing an
// extra error line.
var errIssuesFound = errors.New("phpstan reported errors")

var checkCmd = &cobra.Command{
	Use:   "check [paths...]",
	Short: "Run PHPStan once and print its errors",
	Long: `Run PHPStan over the given paths (default: the configured paths) and
print every error. With --fix an ignore comment is inserted above each
reported line instead. --fix-mode once limits that to the first error of
every file, and --fix-id only suppresses errors with that identifier.`,
	RunE: runCheckCmd,
}

func init() {
	checkCmd.Flags().Bool("fix", false, "insert an ignore comment above every reported line")
	checkCmd.Flags().String("fix-mode", "all", "which errors --fix suppresses per file (once|all)")
	checkCmd.Flags().String("fix-id", "", "only suppress errors with this PHPStan identifier (implies --fix)")
	checkCmd.Flags().String("format", "text", "output format (text|json)")
}

var (
	pathColor    = color.New(color.Bold)
	errorColor   = color.New(color.FgRed, color.Bold)
	codeColor    = color.New(color.FgHiBlack)
	fixedColor   = color.New(color.FgYellow)
	successColor = color.New(color.FgGreen, color.Bold)
)

// pathChecker analyses paths in one analyzer run.
type pathChecker interface {
	CheckPaths(ctx context.Context, paths []string) (map[string][]diag.RawError, error)
}

type checkOptions struct {
	Paths     []string
	Root      string
	Fix       bool
	FixMode   fix.ApplyMode
	FixID     string
	Format    string
	Directive string
}

// applyOptions selects the fixes --fix inserts.
func (o checkOptions) applyOptions() fix.ApplyOptions {
	if o.FixID != "" {
		return fix.ApplyOptions{Mode: fix.ApplyModeID, TargetID: fix.IgnoreID(o.FixID)}
	}
	return fix.ApplyOptions{Mode: o.FixMode}
}

type reportedError struct {
	Line       int    `json:"line"`
	Column     int    `json:"column"`
	Message    string `json:"message"`
	Identifier string `json:"identifier,omitempty"`
	Fixed      bool   `json:"fixed,omitempty"`
}

type fileReport struct {
	Path   string          `json:"path"`
	Errors []reportedError `json:"errors"`
}

type checkSummary struct {
	Files  []fileReport `json:"files"`
	Errors int          `json:"errors"`
	Fixed  int          `json:"fixed"`
}

func runCheckCmd(cmd *cobra.Command, args []string) error {
	configPath, err := cmd.Root().PersistentFlags().GetString("config")
	if err != nil {
		return err
	}
	applyFix, err := cmd.Flags().GetBool("fix")
	if err != nil {
		return err
	}
	fixModeFlag, err := cmd.Flags().GetString("fix-mode")
	if err != nil {
		return err
	}
	fixMode, err := fix.ParseApplyMode(fixModeFlag)
	if err != nil {
		return err
	}
	fixID, err := cmd.Flags().GetString("fix-id")
	if err != nil {
		return err
	}
	if fixID != "" {
		applyFix = true
	}
	format, err := cmd.Flags().GetString("format")
	if err != nil {
		return err
	}
	if format != "text" && format != "json" {
		return fmt.Errorf("unsupported format %q (must be text or json)", format)
	}

	cwd, err := os.Getwd()
	if err != nil {
		return err
	}
	cfg, err := config.Load(cwd, configPath)
	if err != nil {
		return err
	}
	if cfg.Path != "" {
		cfg.Root = filepath.Dir(cfg.Path)
	}
	paths := args
	if len(paths) == 0 {
		paths = cfg.Paths
	}

	stopProfiling, err := setupProfiling(cmd)
	if err != nil {
		return err
	}
	defer stopProfiling()

	_, cleanup, err := setupTracing(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	runner := analyzer.NewPHPStan(cfg.AnalyzerOptions(logging.NewLogger("phpstan")))
	summary, err := runCheck(ctx, cmd.OutOrStdout(), runner, checkOptions{
		Paths:     resolvePaths(cfg.Root, paths),
		Root:      cfg.Root,
		Fix:       applyFix,
		FixMode:   fixMode,
		FixID:     fixID,
		Format:    format,
		Directive: cfg.IgnoreDirective,
	})
	if err != nil {
		return err
	}
	if summary.Errors > summary.Fixed {
		return errIssuesFound
	}
	return nil
}

func resolvePaths(root string, paths []string) []string {
	out := make([]string, len(paths))
	for i, p := range paths {
		if !filepath.IsAbs(p) && root != "" {
			p = filepath.Join(root, p)
		}
		out[i] = p
	}
	return out
}

// runCheck analyses opts.Paths, optionally suppresses every error with an
// ignore comment, and writes the report to out.
func runCheck(ctx context.Context, out io.Writer, checker pathChecker, opts checkOptions) (checkSummary, error) {
	summary := checkSummary{Files: []fileReport{}}
	span := trace.Begin(trace.FromContext(ctx), trace.ScopeCheck, "check", trace.CurrentSpan(ctx))
	results, err := checker.CheckPaths(ctx, opts.Paths)
	if err != nil {
		span.End("failed")
		return summary, err
	}

	files := make([]string, 0, len(results))
	for path, errs := range results {
		if len(errs) > 0 {
			files = append(files, path)
		}
	}
	slices.Sort(files)

	gen := fix.NewIgnoreLine(opts.Directive)
	for _, path := range files {
		report, fixed, err := reportFile(path, results[path], gen, opts)
		if err != nil {
			span.End("failed")
			return summary, err
		}
		summary.Files = append(summary.Files, report)
		summary.Errors += len(report.Errors)
		summary.Fixed += fixed
	}
	span.WithExtra("errors", strconv.Itoa(summary.Errors)).End("ok")

	if opts.Format == "json" {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return summary, enc.Encode(summary)
	}
	renderCheckText(out, summary)
	return summary, nil
}

func reportFile(path string, errs []diag.RawError, gen fix.Generator, opts checkOptions) (fileReport, int, error) {
	data, readErr := os.ReadFile(path)
	text := string(data)
	diags := diag.Map(errs, text, readErr == nil)

	fixedLines := map[int]bool{}
	if opts.Fix && readErr == nil {
		fixes := make([]fix.Fix, 0, len(diags))
		for _, d := range diags {
			if f, ok := gen.Generate(text, d); ok {
				fixes = append(fixes, f)
			}
		}
		result, err := fix.ApplyFile(path, fixes, opts.applyOptions())
		if err != nil && !errors.Is(err, fix.ErrNoFixes) {
			return fileReport{}, 0, err
		}
		if result != nil && result.Changed() {
			for _, applied := range result.Applied {
				fixedLines[applied.Line] = true
			}
		}
	}

	report := fileReport{Path: displayPath(opts.Root, path)}
	fixed := 0
	for _, d := range diags {
		r := reportedError{
			Line:       d.Range.Start.Line + 1,
			Column:     d.Range.Start.Character + 1,
			Message:    d.Message,
			Identifier: d.Code,
			Fixed:      fixedLines[d.StartLine()],
		}
		if r.Fixed {
			fixed++
		}
		report.Errors = append(report.Errors, r)
	}
	return report, fixed, nil
}

func displayPath(root, path string) string {
	if root == "" {
		return path
	}
	rel, err := filepath.Rel(root, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return path
	}
	return rel
}

func renderCheckText(out io.Writer, summary checkSummary) {
	for _, file := range summary.Files {
		for _, e := range file.Errors {
			line := fmt.Sprintf("%s %s %s",
				pathColor.Sprintf("%s:%d:%d:", file.Path, e.Line, e.Column),
				errorColor.Sprint("error:"),
				e.Message,
			)
			if e.Identifier != "" {
				line += " " + codeColor.Sprintf("[%s]", e.Identifier)
			}
			if e.Fixed {
				line += " " + fixedColor.Sprint("(ignored)")
			}
			fmt.Fprintln(out, line)
		}
	}
	switch {
	case summary.Errors == 0:
		fmt.Fprintln(out, successColor.Sprint("No errors"))
	case summary.Fixed > 0:
		fmt.Fprintf(out, "%s, %s\n",
			errorColor.Sprintf("Found %s in %s", plural(summary.Errors, "error"), plural(len(summary.Files), "file")),
			fixedColor.Sprintf("%d ignored", summary.Fixed))
	default:
		fmt.Fprintln(out, errorColor.Sprintf("Found %s in %s", plural(summary.Errors, "error"), plural(len(summary.Files), "file")))
	}
}

func plural(n int, word string) string {
	if n == 1 {
		return "1 " + word
	}
	return strconv.Itoa(n) + " " + word + "s"
}
