package main

import (
	"fmt"
	"strconv"

	"github.com/abiosoft/ishell"

	"motorshield/core"
	"motorshield/host/client"
	"motorshield/host/config"
)

// shellCmd maps one protocol command onto a shell command. Arguments past
// len(bits)-len(defaults) are optional.
type shellCmd struct {
	id       core.CommandID
	args     string
	bits     []int
	defaults []uint64
	run      func(cl *client.Client, a []uint64) error
}

var shellCmds = []shellCmd{
	{
		id: core.CmdCreateShield, args: "<shield> <address> [pwm_freq]",
		bits: []int{8, 8, 16}, defaults: []uint64{config.DefaultPWMFreq},
		run: func(cl *client.Client, a []uint64) error {
			return cl.CreateShield(uint8(a[0]), uint8(a[1]), uint16(a[2]))
		},
	},
	{
		id: core.CmdDeleteShield, args: "<shield>", bits: []int{8},
		run: func(cl *client.Client, a []uint64) error {
			return cl.DeleteShield(uint8(a[0]))
		},
	},
	{
		id: core.CmdCreateDCMotor, args: "<shield> <motor>", bits: []int{8, 8},
		run: func(cl *client.Client, a []uint64) error {
			return cl.CreateDCMotor(uint8(a[0]), uint8(a[1]))
		},
	},
	{
		id: core.CmdStartDCMotor, args: "<shield> <motor> <speed> <direction>", bits: []int{8, 8, 8, 8},
		run: func(cl *client.Client, a []uint64) error {
			return cl.StartDCMotor(uint8(a[0]), uint8(a[1]), uint8(a[2]), uint8(a[3]))
		},
	},
	{
		id: core.CmdStopDCMotor, args: "<shield> <motor>", bits: []int{8, 8},
		run: func(cl *client.Client, a []uint64) error {
			return cl.StopDCMotor(uint8(a[0]), uint8(a[1]))
		},
	},
	{
		id: core.CmdSetSpeedDCMotor, args: "<shield> <motor> <speed> <direction>", bits: []int{8, 8, 8, 8},
		run: func(cl *client.Client, a []uint64) error {
			return cl.SetSpeedDCMotor(uint8(a[0]), uint8(a[1]), uint8(a[2]), uint8(a[3]))
		},
	},
	{
		id: core.CmdCreateStepper, args: "<shield> <motor> <steps_per_rev> <rpm>", bits: []int{8, 8, 16, 16},
		run: func(cl *client.Client, a []uint64) error {
			return cl.CreateStepper(uint8(a[0]), uint8(a[1]), uint16(a[2]), uint16(a[3]))
		},
	},
	{
		id: core.CmdReleaseStepper, args: "<shield> <motor>", bits: []int{8, 8},
		run: func(cl *client.Client, a []uint64) error {
			return cl.ReleaseStepper(uint8(a[0]), uint8(a[1]))
		},
	},
	{
		id: core.CmdMoveStepper, args: "<shield> <motor> <steps> <direction> [style]",
		bits: []int{8, 8, 16, 8, 8}, defaults: []uint64{uint64(core.StepSingle)},
		run: func(cl *client.Client, a []uint64) error {
			return cl.MoveStepper(uint8(a[0]), uint8(a[1]), uint16(a[2]), uint8(a[3]), uint8(a[4]))
		},
	},
	{
		id: core.CmdSetSpeedStepper, args: "<shield> <motor> <rpm>", bits: []int{8, 8, 16},
		run: func(cl *client.Client, a []uint64) error {
			return cl.SetSpeedStepper(uint8(a[0]), uint8(a[1]), uint16(a[2]))
		},
	},
}

// parseArgs parses decimal or 0x-prefixed arguments, filling missing
// optional ones from defaults.
func parseArgs(args []string, bits []int, defaults []uint64) ([]uint64, error) {
	required := len(bits) - len(defaults)
	if len(args) < required || len(args) > len(bits) {
		return nil, fmt.Errorf("expected %d to %d arguments, got %d", required, len(bits), len(args))
	}
	out := make([]uint64, len(bits))
	for i := range bits {
		if i >= len(args) {
			out[i] = defaults[i-required]
			continue
		}
		v, err := strconv.ParseUint(args[i], 0, bits[i])
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", i+1, err)
		}
		out[i] = v
	}
	return out, nil
}

func newShell(cl *client.Client, cfg *config.Config) *ishell.Shell {
	shell := ishell.New()
	shell.Println("Motor shield shell (type 'help' for commands)")
	shell.ShowPrompt(true)

	for _, sc := range shellCmds {
		sc := sc
		name := sc.id.String()
		shell.AddCmd(&ishell.Cmd{
			Name: name,
			Help: name + " " + sc.args,
			Func: func(c *ishell.Context) {
				a, err := parseArgs(c.Args, sc.bits, sc.defaults)
				if err != nil {
					c.Err(err)
					return
				}
				if err := sc.run(cl, a); err != nil {
					c.Err(err)
					return
				}
				c.Printf("%s: ok\n", name)
			},
		})
	}

	shell.AddCmd(&ishell.Cmd{
		Name: "setup",
		Help: "setup - create every shield and motor in the profile",
		Func: func(c *ishell.Context) {
			if len(cfg.Shields) == 0 {
				c.Println("profile has no shields")
				return
			}
			if err := cl.ApplyProfile(cfg); err != nil {
				c.Err(err)
				return
			}
			c.Printf("created %d shields\n", len(cfg.Shields))
		},
	})

	return shell
}
