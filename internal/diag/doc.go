// Package diag defines the diagnostic model shared by the scheduler, the
// navigator and the quick-fix generator.
//
// # Data model
//
//   - RawError – what the analyzer reports: a 1-based line number and a message.
//     It carries no column information.
//   - Diagnostic – a RawError refined to a sub-line Range against the document
//     text that was current when the result arrived.
//   - Store – process-wide map from file URI to the ordered diagnostics of the
//     last applied check result for that file.
//
// # Mapping
//
// Map converts raw errors into diagnostics. The analyzer only knows lines, so
// the range is narrowed to the non-whitespace content of the reported line.
// When the text is unavailable, or the line does not exist in it, the
// diagnostic collapses to a zero-width range at column 0 of that line.
//
// Columns are counted in UTF-16 code units, the unit editors speaking LSP use.
//
// # Store discipline
//
// Store entries are replaced wholesale per check result; there is no
// incremental patching. Each mutation takes the store lock, so a single
// writer at a time is guaranteed even when results complete on different
// goroutines. Readers receive copies and never observe a half-applied result.
package diag
