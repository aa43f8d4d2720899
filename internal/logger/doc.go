// Package logger provides a small wrapper around zap to offer:
//   - explicit construction of a sugared logger from level, format and output settings,
//   - context helpers (ToContext/FromContext/WithName/WithKV),
//   - level parsing utilities,
//   - convenience functions (Info, InfoKV, ErrorKV, etc.).
//
// There is no global logger: the entry point builds one and either passes it
// to constructors or stores it in the context. FromContext falls back to a
// no-op logger so library code never has to check for nil.
package logger
