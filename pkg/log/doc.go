// Package log provides the logging abstraction used across docship.
//
// Components receive a Logger explicitly. The zerolog adapter is the default
// implementation; NoopLogger discards everything and is handy in tests.
//
//	logger := log.NewZerologAdapter(log.WithLevel("debug"), log.WithFormat("json"))
//	logger.Info("batch sent", log.Int("items", 100), log.Duration("took", took))
//
// Any other logging library can be plugged in by implementing Logger.
package log
