package logger

import "go.uber.org/zap/zapcore"

// Verbosity levels for the CLI -v flag count.
const (
	VerbosityUser  = 0 // No flags: results and errors only
	VerbosityInfo  = 1 // -v: + startup and request logs
	VerbosityDebug = 2 // -vv: + cache and broker detail
)

// VerbosityToLevel maps verbosity flags (-v, -vv) to zap log levels
//
//	0 (none)  -> WarnLevel
//	1 (-v)    -> InfoLevel
//	2+ (-vv)  -> DebugLevel
func VerbosityToLevel(verbosity int) zapcore.Level {
	switch {
	case verbosity <= VerbosityUser:
		return zapcore.WarnLevel
	case verbosity == VerbosityInfo:
		return zapcore.InfoLevel
	default:
		return zapcore.DebugLevel
	}
}
