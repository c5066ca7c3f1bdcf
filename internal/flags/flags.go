package flags

// Package flags defines canonical CLI flag names shared across commands.
// Keeping these as constants avoids drift between Cobra flag wiring and other
// code paths that reference flags by name.
// IMPORTANT: These are flag *names* without leading dashes.
const (
	// Global
	FlagVerbose    = "verbose"
	FlagAPIURL     = "api-url"
	FlagPolicyPath = "policy-path"

	// Serve
	FlagAddr        = "addr"
	FlagCacheTTL    = "cache-ttl"
	FlagCheckPrefix = "check-prefix"
	FlagBatchSize   = "batch-size"
	FlagBatchDelay  = "batch-delay"
	FlagRetryMax    = "retry-max"
	FlagRetryDelay  = "retry-base-delay"
	FlagLogFormat   = "log-format"
)
