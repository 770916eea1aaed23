package models

import "errors"

// Sentinel errors shared across the resolver and sync pipeline. Callers
// classify with errors.Is so wrapped context survives the round trip.
var (
	// ErrInvalidCoordinates marks a latitude/longitude pair that is not a
	// finite number. Never retryable.
	ErrInvalidCoordinates = errors.New("invalid coordinates")

	// ErrLocationNotFound means no commune boundary contains the point.
	// Expected absence, not an infrastructure failure.
	ErrLocationNotFound = errors.New("no administrative area contains point")

	// ErrStoreUnavailable wraps spatial/relational store connectivity
	// failures. Retryable.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrObjectStorageUnavailable wraps MinIO connectivity failures.
	// Retryable.
	ErrObjectStorageUnavailable = errors.New("object storage unavailable")

	// ErrObjectStorageMisconfigured means no object storage endpoint is
	// configured; uploads are skipped rather than retried.
	ErrObjectStorageMisconfigured = errors.New("object storage not configured")

	// ErrRateLimited wraps 429/quota responses from remote services.
	// Retryable.
	ErrRateLimited = errors.New("rate limited by remote service")

	// ErrPermanentUpload marks an upload rejected for a non-transient
	// reason. Fails the record or group immediately.
	ErrPermanentUpload = errors.New("permanent upload failure")

	// ErrSpreadsheetFormat means a downloaded artifact is missing the
	// expected worksheet. Fails the destination group immediately.
	ErrSpreadsheetFormat = errors.New("spreadsheet has unexpected format")
)
