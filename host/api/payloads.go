package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/render"

	"motorshield/afms"
	"motorshield/core"
	"motorshield/host/config"
)

var (
	ErrBadDirection = errors.New("direction must be 1 (forward) to 4 (release)")
	ErrBadStepDir   = errors.New("direction must be 1 (forward) or 2 (backward)")
	ErrBadStyle     = errors.New("style must be 1 (single) to 4 (microstep)")
	ErrBadAddress   = errors.New("address must be 0x60 to 0x7f")
	ErrZeroSpeed    = errors.New("rpm must be positive")
	ErrZeroSteps    = errors.New("steps_per_rev must be positive")
)

type ShieldPayload struct {
	Address uint8  `json:"address"`
	PWMFreq uint16 `json:"pwm_freq"`
}

func (p *ShieldPayload) Bind(r *http.Request) error {
	if p.Address == 0 {
		p.Address = afms.DefaultAddress
	}
	if p.Address < config.MinAddress || p.Address > config.MaxAddress {
		return ErrBadAddress
	}
	if p.PWMFreq == 0 {
		p.PWMFreq = config.DefaultPWMFreq
	}
	return nil
}

type DCPayload struct {
	Speed     uint8 `json:"speed"`
	Direction uint8 `json:"direction"`
}

func (p *DCPayload) Bind(r *http.Request) error {
	if p.Direction < core.RunForward || p.Direction > core.RunRelease {
		return ErrBadDirection
	}
	return nil
}

type StepperPayload struct {
	StepsPerRev uint16 `json:"steps_per_rev"`
	RPM         uint16 `json:"rpm"`
}

func (p *StepperPayload) Bind(r *http.Request) error {
	if p.StepsPerRev == 0 {
		return ErrZeroSteps
	}
	if p.RPM == 0 {
		return ErrZeroSpeed
	}
	return nil
}

type MovePayload struct {
	Steps     uint16 `json:"steps"`
	Direction uint8  `json:"direction"`
	Style     uint8  `json:"style"`
}

func (p *MovePayload) Bind(r *http.Request) error {
	if p.Direction != afms.Forward && p.Direction != afms.Backward {
		return ErrBadStepDir
	}
	if p.Style == 0 {
		p.Style = core.StepSingle
	}
	if p.Style > core.StepMicrostep {
		return ErrBadStyle
	}
	return nil
}

type SpeedPayload struct {
	RPM uint16 `json:"rpm"`
}

func (p *SpeedPayload) Bind(r *http.Request) error {
	if p.RPM == 0 {
		return ErrZeroSpeed
	}
	return nil
}

// AckResponse is returned once the device has acknowledged a command.
type AckResponse struct {
	Command string `json:"command"`
	Shield  uint8  `json:"shield"`
	Motor   *uint8 `json:"motor,omitempty"`
}

func (a *AckResponse) Render(w http.ResponseWriter, r *http.Request) error {
	return nil
}

func ack(cmd core.CommandID, shield uint8) *AckResponse {
	return &AckResponse{Command: cmd.String(), Shield: shield}
}

func motorAck(cmd core.CommandID, shield, motor uint8) *AckResponse {
	return &AckResponse{Command: cmd.String(), Shield: shield, Motor: &motor}
}

// ErrResponse renders an error with its HTTP status.
type ErrResponse struct {
	Err            error `json:"-"`
	HTTPStatusCode int   `json:"-"`

	ErrorText string `json:"error"`
}

func (e *ErrResponse) Render(w http.ResponseWriter, r *http.Request) error {
	render.Status(r, e.HTTPStatusCode)
	return nil
}

func ErrInvalidRequest(err error) render.Renderer {
	return &ErrResponse{Err: err, HTTPStatusCode: http.StatusBadRequest, ErrorText: err.Error()}
}

func ErrDevice(err error, status int) render.Renderer {
	return &ErrResponse{Err: err, HTTPStatusCode: status, ErrorText: err.Error()}
}
