package dynamo

// DynamoDB attribute names used in expressions.
// Using constants prevents silent runtime bugs caused by key typos.
const (
	fieldPK              = "pk"
	fieldVerified        = "verified"
	fieldLastRequestedAt = "last_requested_at"
	fieldUpdatedAt       = "updated_at"
)

// Item key prefixes. Records and email locks share one table so that record
// creation and email uniqueness commit in a single transaction.
const (
	recordPrefix = "REC#"
	emailPrefix  = "EMAIL#"
)
