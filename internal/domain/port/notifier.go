package port

import "context"

// FailureNotice describes a job that will not be retried.
type FailureNotice struct {
	UserEmail string
	JobID     string
	VideoKey  string
	Reason    string
}

type FailureNotifier interface {
	NotifyFailure(ctx context.Context, notice FailureNotice) error
}
