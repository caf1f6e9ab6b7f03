// Package logx is crosspost's structured logging, a thin layer over zerolog.
//
// Call sites pass typed Field values instead of touching zerolog events, and
// a Logger obtained from a Service follows the Service across Apply calls, so
// a config reload can change level and sinks without rebuilding every
// component's logger.
package logx
