// Package gpulog provides a small structured, leveled logger.
//
// It is modeled on gapid's core/log + core/fault/severity split: an
// immutable Logger built by chaining With(key, value) calls and
// finished with a Log/Logf call, filtered by a minimum severity rather
// than printed unconditionally.
package gpulog

import "fmt"

// Severity mirrors the rfc5424 levels gapid's core/fault/severity uses.
type Severity int32

const (
	Emergency Severity = iota
	Alert
	Critical
	Error
	Warning
	Notice
	Info
	Debug
)

func (s Severity) String() string {
	switch s {
	case Emergency:
		return "emergency"
	case Alert:
		return "alert"
	case Critical:
		return "critical"
	case Error:
		return "error"
	case Warning:
		return "warning"
	case Notice:
		return "notice"
	case Info:
		return "info"
	case Debug:
		return "debug"
	default:
		return fmt.Sprintf("severity(%d)", int32(s))
	}
}
