package core

import "errors"

var (
	ErrUnknownCommand   = errors.New("core: unknown command")
	ErrShortPayload     = errors.New("core: payload shorter than command layout")
	ErrShieldNotCreated = errors.New("core: shield slot is empty")
	ErrMotorNotCreated  = errors.New("core: motor slot is empty")
	ErrMotorIndex       = errors.New("core: motor index out of range")
	ErrNoFactory        = errors.New("core: no shield factory configured")
)

// CommandError ties a failure to the command that caused it. It avoids fmt
// so the package stays small on TinyGo targets.
type CommandError struct {
	ID     CommandID
	Err    error
	Detail string
}

func (e *CommandError) Error() string {
	msg := e.ID.String() + ": " + e.Err.Error()
	if e.Detail != "" {
		msg += " (" + e.Detail + ")"
	}
	return msg
}

func (e *CommandError) Unwrap() error {
	return e.Err
}
