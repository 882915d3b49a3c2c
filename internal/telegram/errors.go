package telegram

import "fmt"

// TransportError covers connect and network-level failures. Recoverable: the
// affected session resets its auth state, the process keeps running.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// AuthError covers code-request and sign-in failures. TwoFactorRequired is
// set when the account has cloud-password protection, which the responder
// does not support.
type AuthError struct {
	Op                string
	TwoFactorRequired bool
	Err               error
}

func (e *AuthError) Error() string {
	if e.TwoFactorRequired {
		return fmt.Sprintf("auth %s: two-factor password required", e.Op)
	}
	return fmt.Sprintf("auth %s: %v", e.Op, e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// DeliveryError covers outbound send failures. The queue worker logs it and
// moves on to the next item.
type DeliveryError struct {
	PeerID int64
	Err    error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("delivery to %d: %v", e.PeerID, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }
