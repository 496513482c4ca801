// Package logx configures notifyrelay's structured logging.
//
// This repo uses a small wrapper (logx.Logger) on top of zerolog to keep:
//   - Console output readable (short timestamp + short caller)
//   - File output JSON-structured
//
// When the relay runs under launchd or systemd, stdout is already redirected
// to the service log file, so the console writer is what operators read via
// `notifyrelay daemon logs`.
package logx
