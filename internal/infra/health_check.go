package infra

import (
	"context"
	"os"
	"time"

	log "github.com/sirupsen/logrus"
)

const checkExecInterval = 5 * time.Second

// MonitorExecutable closes the returned channel when the running
// binary is replaced on disk, signalling the caller to restart. If the
// binary cannot be watched the monitor goes quiet instead of firing;
// only an observed modification ever signals.
func MonitorExecutable(ctx context.Context) <-chan struct{} {
	ch := make(chan struct{})
	go func() {
		exePath, err := os.Executable()
		if err != nil {
			log.WithError(err).Warn("executable monitor disabled, cant resolve binary path")
			return
		}
		stat, err := os.Stat(exePath)
		if err != nil {
			log.WithError(err).Warn("executable monitor disabled, cant stat binary")
			return
		}
		startedWith := stat.ModTime()

		ticker := time.NewTicker(checkExecInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				current, err := os.Stat(exePath)
				if err != nil {
					log.WithError(err).Warn("cant stat binary, skipping monitor tick")
					continue
				}
				if !startedWith.Equal(current.ModTime()) {
					close(ch)
					return
				}
			}
		}
	}()
	return ch
}
