// Package logging contains the structured logger shared by the transfer
// harness, the subscriber, and the comparator servers.
package logging

import (
	golog "log"
	"net/http"
	"os"

	"github.com/apex/log"
	"github.com/apex/log/handlers/json"
	"github.com/gorilla/handlers"
)

// Logger emits JSON records on the standard error. Measurements never go
// here: they belong to the CSV result logs.
var Logger = log.Logger{
	Handler: json.New(os.Stderr),
	Level:   log.InfoLevel,
}

// SetLevel parses |level| (debug, info, warn, error, fatal) and applies it
// to Logger. It is meant to be called once, from main, before any goroutine
// starts logging.
func SetLevel(level string) error {
	lvl, err := log.ParseLevel(level)
	if err != nil {
		return err
	}
	Logger.Level = lvl
	return nil
}

// MakeAccessLogHandler wraps |handler| with another handler that logs
// access to each resource in the Apache common log format, through the
// standard library logger.
func MakeAccessLogHandler(handler http.Handler) http.Handler {
	return handlers.LoggingHandler(golog.Writer(), handler)
}
