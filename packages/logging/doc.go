// Package logging builds the zerolog loggers used by the relay server.
//
// Operational logs (access log, decode warnings, evictions) go through a
// zerolog.Logger built here. User-facing CLI output does not; the commands
// print with fatih/color instead.
//
//	logger := logging.New(logging.Config{
//	    Level:  logging.ParseLevel("debug"),
//	    Format: logging.FormatJSON,
//	})
//	logger.Info().Str("addr", addr).Msg("relay listening")
//
// Components accept a zerolog.Logger in their options. If none is given they
// fall back to logging.Nop().
package logging
