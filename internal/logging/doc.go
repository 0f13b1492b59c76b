// Package logging provides structured logging for the gateway core.
//
// It wraps Go's log/slog with a JSON handler. Child loggers carry the
// identifiers that matter when reading logs from a multi-session
// gateway: conversation, session and operation.
//
//	logger, err := logging.NewLogger(cfg.Logging.Dir, cfg.Logging.Level)
//	if err != nil {
//	    return err
//	}
//	defer logger.Close()
//
//	logger.WithConversation("c1").WithSession("s1").Info("context updated", "key", "x")
//
// When no directory is configured the logger writes to stderr. It never
// writes to stdout, which belongs to the MCP stdio transport.
//
// [Logger.Failure] picks the level from the error's severity, so callers
// log precondition failures and transient delivery failures consistently.
package logging
