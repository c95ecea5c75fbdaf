package config

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/netsys-io/netbricks/state"
)

// WatchSignals reloads an application configuration into an Atom when
// the process receives SIGHUP or SIGUSR1. The swap is atomic; pipelines
// read the atom between bursts and never see a partial update. The
// returned stop function ends the watcher.
func WatchSignals[T any](atom *state.Atom[T], reload func() (T, error)) (stop func()) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGHUP, syscall.SIGUSR1)
	done := make(chan struct{})

	go func() {
		for {
			select {
			case sig := <-ch:
				next, err := reload()
				if err != nil {
					logrus.WithError(err).WithField("signal", sig).
						Error("configuration reload failed, keeping current")
					continue
				}
				atom.Set(next)
				logrus.WithField("signal", sig).Info("configuration swapped")
			case <-done:
				signal.Stop(ch)
				return
			}
		}
	}()

	return func() { close(done) }
}
