package pipeerr

// Kind is a machine-readable error classification that drives how the
// pipeline reacts: retry, drop the artifact, or halt the run.
type Kind string

const (
	// KindTransient covers network, auth, and rate-limit failures.
	// Retryable with bounded exponential backoff at the stage worker.
	KindTransient Kind = "TRANSIENT"

	// KindPermanentArtifact covers malformed or unsupported content and
	// source objects that vanished upstream. The artifact is dropped and
	// the run continues.
	KindPermanentArtifact Kind = "PERMANENT_ARTIFACT"

	// KindConfiguration covers missing or malformed connector options.
	// Fatal before any stage runs.
	KindConfiguration Kind = "CONFIGURATION"

	// KindCacheIntegrity covers a fingerprint collision with divergent
	// content. Fatal, surfaced immediately, never silently overwritten.
	KindCacheIntegrity Kind = "CACHE_INTEGRITY"

	// KindRunAborted covers the failure threshold being exceeded. Fatal,
	// stops dispatch, preserves cache entries already written.
	KindRunAborted Kind = "RUN_ABORTED"
)
