// Package gologger wires the glog loggers shared by the webhook service into
// the logger contracts go-job expects from delivery queue workers.
package gologger

import (
	"strings"

	job "github.com/goliatone/go-job"
	glog "github.com/goliatone/go-logger/glog"
)

// DefaultLoggerName is the named logger the webhook components log under.
const DefaultLoggerName = "webhooks"

// Resolve picks the effective logger with deterministic precedence: a named
// provider logger first, then the direct logger, then a nop. Blank names fall
// back to DefaultLoggerName.
func Resolve(name string, provider glog.LoggerProvider, logger glog.Logger) (glog.LoggerProvider, glog.Logger) {
	if strings.TrimSpace(name) == "" {
		name = DefaultLoggerName
	}
	return glog.Resolve(name, provider, logger)
}

// JobProvider exposes a glog provider through the go-job provider contract so
// queue workers log through the same stack as the ingestion service.
func JobProvider(provider glog.LoggerProvider) job.LoggerProvider {
	if provider == nil {
		return nil
	}
	return job.GoLoggerProvider(provider)
}

// JobLogger exposes a single glog logger through the go-job logger contract.
func JobLogger(logger glog.Logger) job.Logger {
	if logger == nil {
		return nil
	}
	return job.GoLogger(logger)
}

// ResolveForJob resolves the service logger once and hands back both views:
// the glog pair for webhook components and the go-job pair for workers.
func ResolveForJob(
	name string,
	provider glog.LoggerProvider,
	logger glog.Logger,
) (glog.LoggerProvider, glog.Logger, job.LoggerProvider, job.Logger) {
	resolvedProvider, resolvedLogger := Resolve(name, provider, logger)
	return resolvedProvider, resolvedLogger, JobProvider(resolvedProvider), JobLogger(resolvedLogger)
}
