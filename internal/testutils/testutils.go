// Package testutils contains fixtures shared by the tests of the engine.
package testutils

import (
	"github.com/go-logr/logr"
	. "github.com/onsi/ginkgo/v2"
	"go.uber.org/zap/zapcore"
	"sigs.k8s.io/controller-runtime/pkg/log/zap"
)

// NewLogger returns a development logger that writes to the Ginkgo output at the given
// verbosity.
func NewLogger(loglevel int) logr.Logger {
	opts := zap.Options{
		Development:     true,
		DestWriter:      GinkgoWriter,
		StacktraceLevel: zapcore.Level(3),
		TimeEncoder:     zapcore.RFC3339NanoTimeEncoder,
		Level:           zapcore.Level(loglevel),
	}
	return zap.New(zap.UseFlagOptions(&opts))
}
