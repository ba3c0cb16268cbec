package taskname

const (
	// Milestone tasks
	MilestoneEvaluate = "milestone:evaluate"

	// Payout tasks
	PayoutDispatch = "payout:dispatch"

	// Campaign tasks
	CampaignExpire = "campaign:expire"
)

// Queues
const (
	QueueCritical = "critical"
	QueueDefault  = "default"
	QueueLow      = "low"
)
