// Package monitoring holds the diagnostic logger and the Prometheus
// collectors shared by the sensor pipeline.
package monitoring

import "log"

// Logf receives every diagnostic line. It defaults to log.Printf, which
// cmd/radar points at the rotating log file.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces Logf. A nil f discards all output.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		f = func(string, ...interface{}) {}
	}
	Logf = f
}

// Component returns a logger that prefixes lines with "name: ". Logf is
// looked up on each call so a later SetLogger still applies.
func Component(name string) func(format string, v ...interface{}) {
	prefix := name + ": "
	return func(format string, v ...interface{}) {
		Logf(prefix+format, v...)
	}
}
