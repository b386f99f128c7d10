package model

// TxStatus is the transaction lifecycle state.
type TxStatus string

const (
	StatusQueued          TxStatus = "queued"
	StatusBroadcasting    TxStatus = "broadcasting"
	StatusRetryScheduled  TxStatus = "retry_scheduled"
	StatusExecuted        TxStatus = "executed"
	StatusExpired         TxStatus = "expired"
	StatusInvalid         TxStatus = "invalid"
	StatusStaleByNonce    TxStatus = "stale_by_nonce"
	StatusCanceledLocally TxStatus = "canceled_locally"
)

// NonTerminalStatuses are the statuses a row may be claimed/rescheduled from.
var NonTerminalStatuses = []TxStatus{StatusQueued, StatusBroadcasting, StatusRetryScheduled}

func (s TxStatus) IsTerminal() bool {
	switch s {
	case StatusExecuted, StatusExpired, StatusInvalid, StatusStaleByNonce, StatusCanceledLocally:
		return true
	default:
		return false
	}
}

func (s TxStatus) String() string {
	return string(s)
}

// ParseStatus validates a status string from the API surface.
func ParseStatus(s string) (TxStatus, bool) {
	switch status := TxStatus(s); status {
	case StatusQueued, StatusBroadcasting, StatusRetryScheduled,
		StatusExecuted, StatusExpired, StatusInvalid, StatusStaleByNonce, StatusCanceledLocally:
		return status, true
	default:
		return "", false
	}
}
