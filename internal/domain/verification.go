package domain

import "time"

// PurposeEmailVerification discriminates verification tokens from any other
// signed token the surrounding system issues with the same key material.
const PurposeEmailVerification = "email_verification"

// VerificationRecord is the durable per-email verification state.
// Verified only ever moves from false to true.
type VerificationRecord struct {
	ID              string    `json:"id" dynamodbav:"verification_id"`
	Email           string    `json:"email" dynamodbav:"email"`
	Verified        bool      `json:"verified" dynamodbav:"verified"`
	LastRequestedAt time.Time `json:"last_requested_at" dynamodbav:"last_requested_at"`
	CreatedAt       time.Time `json:"created_at" dynamodbav:"created_at"`
	UpdatedAt       time.Time `json:"updated_at" dynamodbav:"updated_at"`
}

// VerificationClaim is the payload bound into a verification token. Once
// decoded it is a value; the record is always re-read by RecordID.
type VerificationClaim struct {
	RecordID  string
	IssuedAt  time.Time
	ExpiresAt time.Time
	Purpose   string
}

// MarkResult reports the outcome of a successful markVerified call.
type MarkResult int

const (
	// MarkVerified means this call performed the false -> true transition.
	MarkVerified MarkResult = iota + 1
	// MarkAlreadyVerified means the record was verified before this call.
	MarkAlreadyVerified
)

func (r MarkResult) String() string {
	switch r {
	case MarkVerified:
		return "verified"
	case MarkAlreadyVerified:
		return "already_verified"
	default:
		return "unknown"
	}
}

// DispatchJob is one outbound verification email. It carries only the record
// identity and link; the recipient is resolved from the store at send time.
type DispatchJob struct {
	RecordID   string    `json:"record_id"`
	Link       string    `json:"link"`
	EnqueuedAt time.Time `json:"enqueued_at"`
	Attempts   int       `json:"attempts,omitempty"`
}

type RequestVerificationRequest struct {
	Email string `json:"email" validate:"required"`
}

type RedeemTokenRequest struct {
	Token string `json:"token" validate:"required"`
}
