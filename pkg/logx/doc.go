// Package logx configures taskloop's structured logging.
//
// A small wrapper (logx.Logger) on top of zerolog keeps console output
// readable with a short timestamp and caller, keeps file output as JSON,
// and lets hot paths rate limit a derived logger with Throttled.
package logx
