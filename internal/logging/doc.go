// Package logging provides structured JSON logging for the session coordinator.
//
// A [Logger] wraps log/slog and carries persistent attributes that child
// loggers inherit:
//
//	logger, err := logging.NewLogger(dataDir, "INFO")
//	if err != nil {
//	    return err
//	}
//	defer logger.Close()
//
//	channelLog := logger.WithComponent("channel").WithConnection(connID)
//	channelLog.Info("connected", "url", endpoint)
//
// When a directory is given, output goes to coordinator.log inside it and
// is rotated by size through [RotatingWriter]. An empty directory sends
// output to stderr.
//
// Secrets must never be passed as attribute values. Access tokens and
// session credentials are logged only as fingerprints.
package logging
