// Package logging constructs the process-wide zap logger.
package logging

import "go.uber.org/zap"

// New builds a production (JSON) logger, or a development (console)
// logger when debug is set. The logger is returned, never stashed in a
// package-level global; callers thread it through constructors.
func New(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
