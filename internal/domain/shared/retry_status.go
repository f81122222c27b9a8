package shared

// RetryTaskStatus defines durable payout-retry task states
type RetryTaskStatus string

const (
	RetryTaskPending    RetryTaskStatus = "PENDING"
	RetryTaskProcessing RetryTaskStatus = "PROCESSING"
	RetryTaskCompleted  RetryTaskStatus = "COMPLETED"
	RetryTaskFailed     RetryTaskStatus = "FAILED"
)
