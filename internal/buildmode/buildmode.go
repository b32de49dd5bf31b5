// Package buildmode exposes compile-time build flavour switches.
//
// Build with `-tags debug` to get a debug build, which installs the verbose
// HTTP logging interceptor and raises the log level.
package buildmode
