// Package logx configures forecastbot's structured logging.
//
// It wraps zerolog to keep:
//   - Console output readable (short timestamp + short caller)
//   - File output JSON-structured
//   - An optional admin chat sink (min-level + rate limiting) that forwards
//     warnings to the bot administrator through the active messenger
package logx
