package confirmworker

import "errors"

var (
	errEmptyTransferID = errors.New("confirmworker: task requires a non-empty transfer id")
	errShuttingDown    = errors.New("confirmworker: processor is shutting down")
)
