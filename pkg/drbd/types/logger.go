// Package types holds the receive-side core's value types: enums,
// UUID vectors, wire-shaped payloads, and the narrow interfaces to the
// external collaborators spec.md 1 declares out of scope (block layer,
// bitmap/activity-log, metadata store, helper process invocation).
// Mirrors the teacher's pkg/mcast/types package, which plays the same
// role for go-mcast's Message/PeerConfiguration/Logger/Storage types.
package types

// Logger is the logging surface every package in this module logs
// through; no package calls the standard log package or fmt.Println
// directly outside pkg/drbd/definition. Kept verbatim from the
// teacher's types.Logger interface (pkg/mcast/definition/default_logger.go
// implements it as DefaultLogger).
type Logger interface {
	Info(v ...interface{})
	Infof(format string, v ...interface{})
	Warn(v ...interface{})
	Warnf(format string, v ...interface{})
	Error(v ...interface{})
	Errorf(format string, v ...interface{})
	Debug(v ...interface{})
	Debugf(format string, v ...interface{})
	Fatal(v ...interface{})
	Fatalf(format string, v ...interface{})
	Panic(v ...interface{})
	Panicf(format string, v ...interface{})
	ToggleDebug(value bool) bool

	// WithFields returns a Logger that prefixes every subsequent line
	// with the given structured fields (connection id, peer address,
	// epoch number, ...). The default stdlib-backed logger folds these
	// into the message text; the logrus-backed logger attaches them as
	// real structured fields.
	WithFields(fields map[string]interface{}) Logger
}
