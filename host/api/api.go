// Package api exposes the shield commands over HTTP.
package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/rs/zerolog"

	"motorshield/core"
	"motorshield/host/client"
	"motorshield/host/metrics"
)

// Controller sends commands to a device. *client.Client implements it.
type Controller interface {
	CreateShield(shield, address uint8, pwmFreq uint16) error
	DeleteShield(shield uint8) error
	CreateDCMotor(shield, motor uint8) error
	StartDCMotor(shield, motor, speed, direction uint8) error
	StopDCMotor(shield, motor uint8) error
	SetSpeedDCMotor(shield, motor, speed, direction uint8) error
	CreateStepper(shield, motor uint8, stepsPerRev, rpm uint16) error
	ReleaseStepper(shield, motor uint8) error
	MoveStepper(shield, motor uint8, steps uint16, direction, style uint8) error
	SetSpeedStepper(shield, motor uint8, rpm uint16) error
}

var _ Controller = (*client.Client)(nil)

type handler struct {
	ctrl Controller
}

// NewRouter builds the HTTP routes for ctrl.
func NewRouter(ctrl Controller, logger zerolog.Logger) http.Handler {
	h := &handler{ctrl: ctrl}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(logger))
	r.Use(middleware.Recoverer) // make sure this is last

	r.Method("GET", "/metrics", metrics.Handler())

	r.Route("/shields/{shield}", func(r chi.Router) {
		r.Post("/", h.createShield)
		r.Delete("/", h.deleteShield)

		r.Route("/dc/{motor}", func(r chi.Router) {
			r.Post("/", h.createDCMotor)
			r.Post("/start", h.startDCMotor)
			r.Post("/stop", h.stopDCMotor)
			r.Post("/speed", h.setSpeedDCMotor)
		})

		r.Route("/steppers/{motor}", func(r chi.Router) {
			r.Post("/", h.createStepper)
			r.Post("/release", h.releaseStepper)
			r.Post("/move", h.moveStepper)
			r.Post("/speed", h.setSpeedStepper)
		})
	})

	return r
}

func urlIndex(r *http.Request, name string) (uint8, error) {
	v, err := strconv.ParseUint(chi.URLParam(r, name), 10, 8)
	if err != nil {
		return 0, errors.New("invalid " + name + " index " + strconv.Quote(chi.URLParam(r, name)))
	}
	return uint8(v), nil
}

// indices parses {shield} and, when withMotor is set, {motor}. It renders
// the error itself.
func indices(w http.ResponseWriter, r *http.Request, withMotor bool) (shield, motor uint8, ok bool) {
	shield, err := urlIndex(r, "shield")
	if err != nil {
		render.Render(w, r, ErrInvalidRequest(err))
		return 0, 0, false
	}
	if withMotor {
		motor, err = urlIndex(r, "motor")
		if err != nil {
			render.Render(w, r, ErrInvalidRequest(err))
			return 0, 0, false
		}
	}
	return shield, motor, true
}

// reply renders the device outcome of a command.
func reply(w http.ResponseWriter, r *http.Request, err error, ok *AckResponse) {
	switch {
	case err == nil:
		render.Render(w, r, ok)
	case errors.Is(err, client.ErrAckTimeout):
		render.Render(w, r, ErrDevice(err, http.StatusGatewayTimeout))
	case errors.Is(err, client.ErrClosed):
		render.Render(w, r, ErrDevice(err, http.StatusServiceUnavailable))
	default:
		render.Render(w, r, ErrDevice(err, http.StatusBadGateway))
	}
}

func (h *handler) createShield(w http.ResponseWriter, r *http.Request) {
	shield, _, ok := indices(w, r, false)
	if !ok {
		return
	}
	data := &ShieldPayload{}
	if err := render.Bind(r, data); err != nil {
		render.Render(w, r, ErrInvalidRequest(err))
		return
	}
	err := h.ctrl.CreateShield(shield, data.Address, data.PWMFreq)
	reply(w, r, err, ack(core.CmdCreateShield, shield))
}

func (h *handler) deleteShield(w http.ResponseWriter, r *http.Request) {
	shield, _, ok := indices(w, r, false)
	if !ok {
		return
	}
	reply(w, r, h.ctrl.DeleteShield(shield), ack(core.CmdDeleteShield, shield))
}

func (h *handler) createDCMotor(w http.ResponseWriter, r *http.Request) {
	shield, motor, ok := indices(w, r, true)
	if !ok {
		return
	}
	reply(w, r, h.ctrl.CreateDCMotor(shield, motor), motorAck(core.CmdCreateDCMotor, shield, motor))
}

func (h *handler) startDCMotor(w http.ResponseWriter, r *http.Request) {
	h.runDCMotor(w, r, core.CmdStartDCMotor, h.ctrl.StartDCMotor)
}

func (h *handler) setSpeedDCMotor(w http.ResponseWriter, r *http.Request) {
	h.runDCMotor(w, r, core.CmdSetSpeedDCMotor, h.ctrl.SetSpeedDCMotor)
}

func (h *handler) runDCMotor(w http.ResponseWriter, r *http.Request, id core.CommandID,
	send func(shield, motor, speed, direction uint8) error) {
	shield, motor, ok := indices(w, r, true)
	if !ok {
		return
	}
	data := &DCPayload{}
	if err := render.Bind(r, data); err != nil {
		render.Render(w, r, ErrInvalidRequest(err))
		return
	}
	reply(w, r, send(shield, motor, data.Speed, data.Direction), motorAck(id, shield, motor))
}

func (h *handler) stopDCMotor(w http.ResponseWriter, r *http.Request) {
	shield, motor, ok := indices(w, r, true)
	if !ok {
		return
	}
	reply(w, r, h.ctrl.StopDCMotor(shield, motor), motorAck(core.CmdStopDCMotor, shield, motor))
}

func (h *handler) createStepper(w http.ResponseWriter, r *http.Request) {
	shield, motor, ok := indices(w, r, true)
	if !ok {
		return
	}
	data := &StepperPayload{}
	if err := render.Bind(r, data); err != nil {
		render.Render(w, r, ErrInvalidRequest(err))
		return
	}
	err := h.ctrl.CreateStepper(shield, motor, data.StepsPerRev, data.RPM)
	reply(w, r, err, motorAck(core.CmdCreateStepper, shield, motor))
}

func (h *handler) releaseStepper(w http.ResponseWriter, r *http.Request) {
	shield, motor, ok := indices(w, r, true)
	if !ok {
		return
	}
	reply(w, r, h.ctrl.ReleaseStepper(shield, motor), motorAck(core.CmdReleaseStepper, shield, motor))
}

func (h *handler) moveStepper(w http.ResponseWriter, r *http.Request) {
	shield, motor, ok := indices(w, r, true)
	if !ok {
		return
	}
	data := &MovePayload{}
	if err := render.Bind(r, data); err != nil {
		render.Render(w, r, ErrInvalidRequest(err))
		return
	}
	err := h.ctrl.MoveStepper(shield, motor, data.Steps, data.Direction, data.Style)
	reply(w, r, err, motorAck(core.CmdMoveStepper, shield, motor))
}

func (h *handler) setSpeedStepper(w http.ResponseWriter, r *http.Request) {
	shield, motor, ok := indices(w, r, true)
	if !ok {
		return
	}
	data := &SpeedPayload{}
	if err := render.Bind(r, data); err != nil {
		render.Render(w, r, ErrInvalidRequest(err))
		return
	}
	reply(w, r, h.ctrl.SetSpeedStepper(shield, motor, data.RPM), motorAck(core.CmdSetSpeedStepper, shield, motor))
}
