package infra

import (
	"fmt"
	"runtime"
	"strings"

	log "github.com/sirupsen/logrus"
)

// GoRecoverable runs f and restarts it after a panic. maxPanics < 0
// restarts forever; 0 remaining panics is fatal.
func GoRecoverable(maxPanics int, id string, f func()) {
	defer func() {
		if err := recover(); err != nil {
			log.WithField("job", id).Errorf("recovered panic: %v at %s", err, panicOrigin())
			if maxPanics == 0 {
				log.WithField("job", id).Fatal("panic limit exhausted, exiting")
			}
			if maxPanics > 0 {
				maxPanics--
			}
			log.WithField("job", id).WithField("panics_left", maxPanics).Debug("restarting job")
			go GoRecoverable(maxPanics, id, f)
		}
	}()
	f()
}

// panicOrigin walks past the runtime frames to the first frame of the
// panicking code.
func panicOrigin() string {
	var name, file string
	var line int
	var pc [16]uintptr

	n := runtime.Callers(3, pc[:])
	for _, pc := range pc[:n] {
		fn := runtime.FuncForPC(pc)
		if fn == nil {
			continue
		}
		file, line = fn.FileLine(pc)
		name = fn.Name()
		if !strings.HasPrefix(name, "runtime.") {
			break
		}
	}

	switch {
	case name != "":
		return fmt.Sprintf("%v:%v", name, line)
	case file != "":
		return fmt.Sprintf("%v:%v", file, line)
	}
	return fmt.Sprintf("pc:%x", pc)
}
