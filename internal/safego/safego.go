// Package safego provides a panic-recovering goroutine launcher for the
// long-running listeners started by cmd/server.
package safego

import (
	"github.com/rs/zerolog/log"
)

// Go launches fn in a new goroutine named name. A panic in fn is recovered and
// logged with its stack instead of crashing the process. If onPanic is non-nil
// it is called with the recovered value so the caller can react, for example
// by starting shutdown.
func Go(name string, fn func(), onPanic func(recovered any)) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				log.Error().Stack().Str("goroutine", name).Interface("panic", r).Msg("recovered panic in background goroutine")
				if onPanic != nil {
					onPanic(r)
				}
			}
		}()
		fn()
	}()
}
