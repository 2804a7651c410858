// SPDX-License-Identifier: BSD-3-Clause

// Package log provides structured logging for tendhost. It wraps zerolog's
// console writer behind Go's standard slog.Logger so every package depends
// on log/slog alone, while keeping human-readable timestamped output for
// operators tailing the daemon.
//
// # Basic usage
//
//	logger := log.GetGlobalLogger()
//	logger.Info("host transitioned", "host", hostID, "from", from, "to", to)
//
// RedirectStdLog routes anything still writing through the standard log
// package (third-party libraries, mostly) into the same structured sink.
// NewOversightLogger adapts a logger for cirello.io/oversight's supervision
// tree, which expects a variadic-args logging func rather than slog.
package log
