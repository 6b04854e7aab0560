// Package logx configures nightbot's structured logging.
//
// A small wrapper (logx.Logger) on top of zerolog keeps console output
// readable, file output JSON-structured, and can forward warnings to an
// operator chat through a rate-limited sink.
package logx
