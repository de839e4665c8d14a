package pipeerr

import "errors"

// Sentinels raised by collaborators and mapped to kinds by the stage runners.
var (
	// ErrUnsupportedFileType is returned by a partitioner that cannot
	// handle the detected file type.
	ErrUnsupportedFileType = errors.New("unsupported file type")

	// ErrNotFound is returned by a downloader when the source object
	// vanished upstream.
	ErrNotFound = errors.New("source object not found")
)

// KindOf extracts the Kind from err, walking the wrap chain. Sentinels and
// unclassified errors map to KindPermanentArtifact: an unknown failure on one
// artifact must not take the run down.
func KindOf(err error) Kind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind()
	}
	return KindPermanentArtifact
}

// IsTransient reports whether err should be retried with backoff.
func IsTransient(err error) bool {
	return KindOf(err) == KindTransient
}

// IsFatal reports whether err must halt the whole run rather than drop a
// single artifact.
func IsFatal(err error) bool {
	switch KindOf(err) {
	case KindConfiguration, KindCacheIntegrity, KindRunAborted:
		return true
	}
	return false
}

// Transient wraps a cause as a retryable failure.
func Transient(message string, cause error) *Error {
	return Wrap(KindTransient, message, cause)
}

// Permanent wraps a cause as a dropped-artifact failure.
func Permanent(message string, cause error) *Error {
	return Wrap(KindPermanentArtifact, message, cause)
}

// Configuration reports a bad or missing connector option.
func Configuration(message string) *Error {
	return New(KindConfiguration, message)
}
