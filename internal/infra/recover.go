package infra

import (
	"fmt"
	"runtime"
	"strings"

	log "github.com/sirupsen/logrus"
)

// Recover runs f and converts a panic into a logged error. It reports whether f panicked.
func Recover(id string, f func()) (panicked bool) {
	defer func() {
		if err := recover(); err != nil {
			panicked = true
			log.WithFields(log.Fields{
				"job":    id,
				"panic":  fmt.Sprint(err),
				"source": identifyPanic(),
			}).Error("job panicked")
		}
	}()
	f()
	return false
}

// GoRecoverable runs f in the calling goroutine and restarts it in a new one after a
// panic, until maxPanics is exhausted. A negative maxPanics restarts forever.
func GoRecoverable(maxPanics int, id string, f func()) {
	if !Recover(id, f) {
		return
	}
	if maxPanics == 0 {
		log.WithField("job", id).Error("panics limit exceeded, job abandoned")
		return
	}
	if maxPanics > 0 {
		maxPanics--
	}
	log.WithFields(log.Fields{"job": id, "panics_left": maxPanics}).Debug("restarting job")
	go GoRecoverable(maxPanics, id, f)
}

func identifyPanic() string {
	var name, file string
	var line int
	var pc [16]uintptr

	n := runtime.Callers(4, pc[:])
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
