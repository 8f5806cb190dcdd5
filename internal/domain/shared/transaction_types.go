package shared

// Direction defines which network is debited and which is credited
type Direction string

const (
	DirectionWalletToMobile Direction = "WALLET_TO_MOBILE" // e-wallet (A) debited, mobile money (B) credited
	DirectionMobileToWallet Direction = "MOBILE_TO_WALLET" // mobile money (B) debited, e-wallet (A) credited
)

// Valid reports whether d is one of the supported directions
func (d Direction) Valid() bool {
	return d == DirectionWalletToMobile || d == DirectionMobileToWallet
}

// Network identifies one of the two payment networks bridged by the service
type Network string

const (
	NetworkEWallet     Network = "ewallet"
	NetworkMobileMoney Network = "mobile-money"
)

// SourceNetwork returns the network debited for the direction
func (d Direction) SourceNetwork() Network {
	if d == DirectionMobileToWallet {
		return NetworkMobileMoney
	}
	return NetworkEWallet
}

// DestinationNetwork returns the network credited for the direction
func (d Direction) DestinationNetwork() Network {
	if d == DirectionMobileToWallet {
		return NetworkEWallet
	}
	return NetworkMobileMoney
}

// TransactionStatus defines transfer processing states
type TransactionStatus string

const (
	TransactionStatusPending             TransactionStatus = "PENDING"
	TransactionStatusProcessing          TransactionStatus = "PROCESSING"
	TransactionStatusAwaitingSource      TransactionStatus = "AWAITING_SOURCE"
	TransactionStatusSourceCompleted     TransactionStatus = "SOURCE_COMPLETED"
	TransactionStatusAwaitingDestination TransactionStatus = "AWAITING_DESTINATION"
	TransactionStatusCompleted           TransactionStatus = "COMPLETED"
	TransactionStatusFailed              TransactionStatus = "FAILED"
	TransactionStatusCancelled           TransactionStatus = "CANCELLED"
)

// IsTerminal reports whether the status can never be exited
func (s TransactionStatus) IsTerminal() bool {
	switch s {
	case TransactionStatusCompleted, TransactionStatusFailed, TransactionStatusCancelled:
		return true
	}
	return false
}

// LegStatus defines the state of one side of the transfer at its provider
type LegStatus string

const (
	LegStatusNotStarted LegStatus = "NOT_STARTED"
	LegStatusInFlight   LegStatus = "IN_FLIGHT"
	LegStatusUnknown    LegStatus = "UNKNOWN" // provider call timed out or returned an unclassified error
	LegStatusCompleted  LegStatus = "COMPLETED"
	LegStatusFailed     LegStatus = "FAILED"
)

// IsTerminal reports whether the leg outcome is settled at the provider
func (s LegStatus) IsTerminal() bool {
	return s == LegStatusCompleted || s == LegStatusFailed
}

// FailureReason defines why a transfer ended FAILED or CANCELLED
type FailureReason string

const (
	FailureReasonSourceRejected      FailureReason = "SOURCE_REJECTED"
	FailureReasonPartialSettlement   FailureReason = "PARTIAL_SETTLEMENT" // source debited, destination never credited
	FailureReasonOTPExpired          FailureReason = "OTP_EXPIRED"
	FailureReasonOTPAttemptsExceeded FailureReason = "OTP_ATTEMPTS_EXCEEDED"
	FailureReasonUserCancelled       FailureReason = "USER_CANCELLED"
)

// MovedMoney reports whether a transfer that ended with this reason left funds in flight
func (r FailureReason) MovedMoney() bool {
	return r == FailureReasonPartialSettlement
}

// SagaJobStatus defines durable orchestration job states
type SagaJobStatus string

const (
	SagaJobStatusRunnable  SagaJobStatus = "RUNNABLE"
	SagaJobStatusParked    SagaJobStatus = "PARKED" // waiting for a webhook or a status probe
	SagaJobStatusDone      SagaJobStatus = "DONE"
	SagaJobStatusEscalated SagaJobStatus = "ESCALATED" // handed to manual reconciliation
)

// HoldStatus defines the lifecycle of a limit reservation
type HoldStatus string

const (
	HoldStatusHeld      HoldStatus = "HELD"
	HoldStatusCommitted HoldStatus = "COMMITTED"
	HoldStatusReleased  HoldStatus = "RELEASED"
)
