// Package obs is the ambient logging and metrics stack every component
// receives through its constructor - no package-level logger, no hidden
// static registry. Logging is zap wrapped behind logr via zapr; metrics
// are the OTel metrics API bridged to a private Prometheus registry.
package obs

import (
	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"go.uber.org/zap"
)

// NewLogger builds the root logr.Logger for the process: zap in
// development mode (human-readable, colorized) when development is true,
// production mode (JSON, sampled) otherwise.
func NewLogger(development bool) (logr.Logger, func(), error) {
	var zl *zap.Logger
	var err error
	if development {
		zl, err = zap.NewDevelopment()
	} else {
		zl, err = zap.NewProduction()
	}
	if err != nil {
		return logr.Discard(), func() {}, err
	}

	logger := zapr.NewLogger(zl)
	sync := func() { _ = zl.Sync() }
	return logger, sync, nil
}
