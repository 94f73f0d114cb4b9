// Package logx wraps zerolog behind a small structured-logging facade.
//
// Components receive a Logger value; the Service owns sink configuration
// (console/file) and can re-apply it at runtime without invalidating
// previously handed-out loggers.
package logx
