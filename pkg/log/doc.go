/*
Package log provides structured logging for legdb using zerolog.

A single package-level Logger is configured once via Init and then shared by
every subsystem through component loggers created with WithComponent.

	log.Init(log.Config{Level: log.InfoLevel, JSONOutput: true})
	planLog := log.WithComponent("planner")
	planLog.Debug().Str("index", "by_c").Msg("index selected")

Component loggers used in this repo: "database" and "planner" in package
legdb, and "metrics" in the serve-metrics command. Warn-level events record
conditions that are tolerated rather than fatal, such as an edge whose
endpoint no longer exists.
*/
package log
