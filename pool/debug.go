package pool

import (
	"log"
	"os"
)

var debugLogger = log.New(os.Stderr, "[procmap] ", log.Ltime|log.Lmicroseconds)

// debugf logs lifecycle events when the pool was built with WithDebug.
func (g *guts[T, R]) debugf(format string, args ...any) {
	if g.cfg.debug {
		debugLogger.Printf(format, args...)
	}
}
