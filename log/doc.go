// Package log provides the leveled, printf-style logging interface shared by
// the tenantflow engine, workflows and drivers.
//
// Two implementations are provided: DefaultLogger, built on the standard
// library logger with a "[tenantflow] " prefix, and GologLogger, which
// forwards to github.com/kataras/golog. NoOpLogger discards everything.
//
//	logger := log.NewGolog(os.Stderr, log.LogLevelDebug)
//	logger.Info("listening on %s", addr)
//
// Packages that accept a Logger fall back to the package-level logger
// (see SetDefaultLogger and OrDefault) when none is given.
package log
