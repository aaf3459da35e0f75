package common

import "errors"

// Sentinel errors shared across the statement pipeline. Handlers map them
// to HTTP statuses; the queue decides retries based on ErrTransientStorage.
var (
	ErrNotFound   = errors.New("requested item not found")
	ErrConflict   = errors.New("item already exists or conflict")
	ErrBadRequest = errors.New("bad request")

	// Upload path, returned synchronously.
	ErrUploadTooLarge = errors.New("uploaded file exceeds the size limit")
	ErrUploadEmpty    = errors.New("uploaded file is empty")

	// Task-fatal: the statement cannot be processed at all.
	ErrUnknownRecipient = errors.New("recipient user not found or deactivated")
	ErrPasswordMissing  = errors.New("no stored password for encrypted statement")
	ErrBadPassword      = errors.New("stored password failed to decrypt statement")
	ErrUnsupportedBank  = errors.New("unsupported bank statement")
	ErrNoTransactions   = errors.New("statement tables yielded no transactions")

	// Row-local: the offending row is dropped, the task continues.
	ErrInvalidDate    = errors.New("invalid date")
	ErrUnparseableRow = errors.New("unparseable statement row")

	// Worker retries these with backoff.
	ErrTransientStorage = errors.New("transient storage failure")
)
