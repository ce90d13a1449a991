// Per-subsystem loggers, one backend, grounded on lnd.go's
// backendLog/ltndLog/srvrLog/rpcsLog convention: one btclog.Backend feeding
// several named Logger handles so a log line always carries which
// subsystem emitted it.
package maker

import (
	"fmt"
	"os"

	"github.com/btcsuite/btclog"
	"github.com/jrick/logrotate/rotator"
)

var logRotator *rotator.Rotator

type logWriter struct{}

func (logWriter) Write(p []byte) (int, error) {
	os.Stdout.Write(p)
	if logRotator != nil {
		logRotator.Write(p)
	}
	return len(p), nil
}

var backendLog = btclog.NewBackend(logWriter{})

var (
	supLog = backendLog.Logger("SUPR")
	hdlLog = backendLog.Logger("HDLR")
	recLog = backendLog.Logger("RECV")
	wdgLog = backendLog.Logger("WDOG")
	rpcLog = backendLog.Logger("RPCS")
)

// SetLogLevel sets every subsystem logger in this package to level, parsed
// the way lnd.go's --debuglevel flag is.
func SetLogLevel(level string) {
	lvl, ok := btclog.LevelFromString(level)
	if !ok {
		return
	}
	for _, l := range []btclog.Logger{supLog, hdlLog, recLog, wdgLog, rpcLog} {
		l.SetLevel(lvl)
	}
}

// InitLogRotator opens logFile for writing, rotating it once it exceeds
// maxSize (in KiB) and keeping at most maxLogFiles old copies, mirroring
// lnd.go's initLogRotator.
func InitLogRotator(logFile string, maxSize, maxLogFiles int) error {
	r, err := rotator.New(logFile, int64(maxSize), false, maxLogFiles)
	if err != nil {
		return fmt.Errorf("maker: failed to create log rotator: %w", err)
	}
	logRotator = r
	return nil
}

// FlushLogs flushes every buffered log line, meant to run under a deferred
// call in main() per lnd.go's defer backendLog.Flush() shape.
func FlushLogs() {
	if logRotator != nil {
		logRotator.Close()
	}
}
