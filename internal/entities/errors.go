package entities

import "errors"

var (
	// ErrSyncConflict means the local working copy diverged from the remote
	// and was discarded; the next run clones fresh.
	ErrSyncConflict = errors.New("sync conflict")

	// ErrMalformedDataset means the dataset file or a record in it could not be parsed.
	ErrMalformedDataset = errors.New("malformed dataset")

	// ErrUnparseableTimestamp means a stored date/time pair did not match DD.MM.YYYY HH:MM:SS.
	ErrUnparseableTimestamp = errors.New("unparseable timestamp")

	// ErrDuplicateID means two records resolve to the same identifier.
	ErrDuplicateID = errors.New("duplicate id conflict")

	// ErrFetchFailed covers network, HTTP and payload failures of the alert feed.
	ErrFetchFailed = errors.New("fetch failed")

	// ErrPublishRejected means the remote refused the push.
	ErrPublishRejected = errors.New("publish rejected")
)
