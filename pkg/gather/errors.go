package gather

import "fmt"

// ConnectivityError means the router could not be reached or the exchange was
// cut short. It is returned without retrying.
type ConnectivityError struct {
	Op  string
	Err error
}

func (e *ConnectivityError) Error() string {
	if e == nil {
		return "router unreachable"
	}
	return fmt.Sprintf("%s: router unreachable: %v", e.Op, e.Err)
}

func (e *ConnectivityError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// ProtocolError means the router kept answering with something other than the
// expected JSON even after a fresh login, e.g. a wrong password or an
// unsupported firmware.
type ProtocolError struct {
	Op  string
	Err error
}

func (e *ProtocolError) Error() string {
	if e == nil {
		return "malformed router response"
	}
	return fmt.Sprintf("%s: malformed router response after re-login: %v", e.Op, e.Err)
}

func (e *ProtocolError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// sessionExpiredError marks a body that failed to decode while a session was
// held. The router serves its login page instead of an error status.
type sessionExpiredError struct {
	Err error
}

func (e *sessionExpiredError) Error() string {
	return fmt.Sprintf("session expired: %v", e.Err)
}

func (e *sessionExpiredError) Unwrap() error {
	return e.Err
}
