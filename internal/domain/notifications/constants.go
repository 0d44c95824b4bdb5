package notifications

const (
	subjectCreated   = "Leave request awaiting your decision"
	subjectApproved  = "Your leave request was approved"
	subjectRejected  = "Your leave request was rejected"
	subjectCancelled = "A leave request was cancelled"
)
