package pool

import (
	"os"

	"github.com/fatih/color"
)

var (
	exceptionColor = color.New(color.FgRed, color.Bold)
	warningColor   = color.New(color.FgYellow)
)

// printException and printWarning report to stderr the moment a
// condition is observed, not when the stream is consumed. They are
// side-effecting only and never alter control flow. Package variables
// so tests can intercept them.
var printException = func(err error, uid uint64) {
	_, _ = exceptionColor.Fprintf(os.Stderr, "worker exception (uid %d): %v\n", uid, err)
}

var printWarning = func(format string, args ...any) {
	_, _ = warningColor.Fprintf(os.Stderr, "warning: "+format+"\n", args...)
}
