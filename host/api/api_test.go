package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	. "github.com/smartystreets/goconvey/convey"

	"motorshield/host/client"
)

type fakeController struct {
	calls []string
	err   error
}

func (f *fakeController) record(format string, args ...interface{}) error {
	f.calls = append(f.calls, fmt.Sprintf(format, args...))
	return f.err
}

func (f *fakeController) CreateShield(shield, address uint8, pwmFreq uint16) error {
	return f.record("create_shield %d 0x%02x %d", shield, address, pwmFreq)
}

func (f *fakeController) DeleteShield(shield uint8) error {
	return f.record("delete_shield %d", shield)
}

func (f *fakeController) CreateDCMotor(shield, motor uint8) error {
	return f.record("create_dc_motor %d %d", shield, motor)
}

func (f *fakeController) StartDCMotor(shield, motor, speed, direction uint8) error {
	return f.record("start_dc_motor %d %d %d %d", shield, motor, speed, direction)
}

func (f *fakeController) StopDCMotor(shield, motor uint8) error {
	return f.record("stop_dc_motor %d %d", shield, motor)
}

func (f *fakeController) SetSpeedDCMotor(shield, motor, speed, direction uint8) error {
	return f.record("set_speed_dc_motor %d %d %d %d", shield, motor, speed, direction)
}

func (f *fakeController) CreateStepper(shield, motor uint8, stepsPerRev, rpm uint16) error {
	return f.record("create_stepper %d %d %d %d", shield, motor, stepsPerRev, rpm)
}

func (f *fakeController) ReleaseStepper(shield, motor uint8) error {
	return f.record("release_stepper %d %d", shield, motor)
}

func (f *fakeController) MoveStepper(shield, motor uint8, steps uint16, direction, style uint8) error {
	return f.record("move_stepper %d %d %d %d %d", shield, motor, steps, direction, style)
}

func (f *fakeController) SetSpeedStepper(shield, motor uint8, rpm uint16) error {
	return f.record("set_speed_stepper %d %d %d", shield, motor, rpm)
}

func do(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, bytes.NewBufferString(body))
		req.Header.Add("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decode(rr *httptest.ResponseRecorder) map[string]interface{} {
	out := map[string]interface{}{}
	json.Unmarshal(rr.Body.Bytes(), &out)
	return out
}

func TestRoutes(t *testing.T) {
	Convey("Given a router over a fake controller", t, func() {
		ctrl := &fakeController{}
		h := NewRouter(ctrl, zerolog.Nop())

		Convey("every command has a route", func() {
			cases := []struct {
				method, path, body, call string
			}{
				{"POST", "/shields/0", `{"address": 97, "pwm_freq": 1000}`, "create_shield 0 0x61 1000"},
				{"DELETE", "/shields/3", "", "delete_shield 3"},
				{"POST", "/shields/0/dc/2", "", "create_dc_motor 0 2"},
				{"POST", "/shields/0/dc/2/start", `{"speed": 200, "direction": 1}`, "start_dc_motor 0 2 200 1"},
				{"POST", "/shields/0/dc/2/stop", "", "stop_dc_motor 0 2"},
				{"POST", "/shields/0/dc/2/speed", `{"speed": 50, "direction": 2}`, "set_speed_dc_motor 0 2 50 2"},
				{"POST", "/shields/1/steppers/0", `{"steps_per_rev": 200, "rpm": 30}`, "create_stepper 1 0 200 30"},
				{"POST", "/shields/1/steppers/0/release", "", "release_stepper 1 0"},
				{"POST", "/shields/1/steppers/0/move", `{"steps": 400, "direction": 2, "style": 4}`, "move_stepper 1 0 400 2 4"},
				{"POST", "/shields/1/steppers/0/speed", `{"rpm": 12}`, "set_speed_stepper 1 0 12"},
			}
			for _, c := range cases {
				rr := do(h, c.method, c.path, c.body)
				So(rr.Code, ShouldEqual, http.StatusOK)
				So(ctrl.calls[len(ctrl.calls)-1], ShouldEqual, c.call)
			}
			So(len(ctrl.calls), ShouldEqual, len(cases))
		})

		Convey("the ack names the command", func() {
			rr := do(h, "POST", "/shields/1/steppers/0/speed", `{"rpm": 12}`)
			body := decode(rr)
			So(body["command"], ShouldEqual, "set_speed_stepper")
			So(body["shield"], ShouldEqual, float64(1))
			So(body["motor"], ShouldEqual, float64(0))
		})

		Convey("shield defaults fill an empty body", func() {
			rr := do(h, "POST", "/shields/2", `{}`)
			So(rr.Code, ShouldEqual, http.StatusOK)
			So(ctrl.calls, ShouldResemble, []string{"create_shield 2 0x60 1600"})
		})

		Convey("move style defaults to single", func() {
			do(h, "POST", "/shields/0/steppers/1/move", `{"steps": 10, "direction": 1}`)
			So(ctrl.calls, ShouldResemble, []string{"move_stepper 0 1 10 1 1"})
		})

		Convey("bad requests never reach the device", func() {
			cases := []struct {
				name, path, body string
			}{
				{"non-numeric shield", "/shields/x/dc/0/stop", ""},
				{"shield past 255", "/shields/256", `{}`},
				{"non-numeric motor", "/shields/0/dc/a/stop", ""},
				{"address out of range", "/shields/0", `{"address": 16}`},
				{"bad dc direction", "/shields/0/dc/0/start", `{"speed": 1, "direction": 9}`},
				{"zero rpm", "/shields/0/steppers/0", `{"steps_per_rev": 200, "rpm": 0}`},
				{"zero steps per rev", "/shields/0/steppers/0", `{"rpm": 10}`},
				{"bad step direction", "/shields/0/steppers/0/move", `{"steps": 1, "direction": 3}`},
				{"bad style", "/shields/0/steppers/0/move", `{"steps": 1, "direction": 1, "style": 5}`},
				{"malformed json", "/shields/0/steppers/0/speed", `{"rpm":`},
			}
			for _, c := range cases {
				Convey(c.name, func() {
					rr := do(h, "POST", c.path, c.body)
					So(rr.Code, ShouldEqual, http.StatusBadRequest)
					So(decode(rr)["error"], ShouldNotBeEmpty)
					So(ctrl.calls, ShouldBeEmpty)
				})
			}
		})

		Convey("requests show up in the metrics by route", func() {
			do(h, "POST", "/shields/4/dc/1/stop", "")
			rr := do(h, "GET", "/metrics", "")
			So(rr.Code, ShouldEqual, http.StatusOK)
			So(rr.Body.String(), ShouldContainSubstring, "motorshield_http_requests_total")
			So(rr.Body.String(), ShouldContainSubstring, `route="/shields/{shield}/dc/{motor}/stop"`)
			So(rr.Body.String(), ShouldNotContainSubstring, `route="/shields/4/dc/1/stop"`)
		})

		Convey("device failures map to gateway statuses", func() {
			ctrl.err = fmt.Errorf("%w: start_dc_motor", client.ErrAckTimeout)
			rr := do(h, "POST", "/shields/9/dc/0/stop", "")
			So(rr.Code, ShouldEqual, http.StatusGatewayTimeout)
			So(decode(rr)["error"], ShouldContainSubstring, "ack timeout")

			ctrl.err = client.ErrClosed
			rr = do(h, "DELETE", "/shields/0", "")
			So(rr.Code, ShouldEqual, http.StatusServiceUnavailable)

			ctrl.err = errors.New("write: broken pipe")
			rr = do(h, "DELETE", "/shields/0", "")
			So(rr.Code, ShouldEqual, http.StatusBadGateway)
		})
	})
}
