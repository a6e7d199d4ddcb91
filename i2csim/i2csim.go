// Package i2csim is an in-memory I2C bus populated with PCA9685 register
// files. It implements drivers.I2C so the shield driver can run on a host
// without hardware.
package i2csim

import (
	"errors"
	"fmt"
	"sync"

	"tinygo.org/x/drivers"
	"tinygo.org/x/drivers/pca9685"
)

var (
	ErrNoDevice = errors.New("i2csim: no device at address")
	ErrEmptyTx  = errors.New("i2csim: transfer without register address")
)

var _ drivers.I2C = (*Bus)(nil)

// Bus routes transfers to the chip registered at the target address.
type Bus struct {
	mu    sync.Mutex
	chips map[uint16]*PCA9685
	fault error
	txs   int
}

func NewBus() *Bus {
	return &Bus{chips: make(map[uint16]*PCA9685)}
}

// AddPCA9685 attaches a chip at addr in its power-on state, replacing any
// chip already there.
func (b *Bus) AddPCA9685(addr uint8) *PCA9685 {
	b.mu.Lock()
	defer b.mu.Unlock()
	chip := newPCA9685(addr)
	b.chips[uint16(addr)] = chip
	return chip
}

// Remove detaches the chip at addr.
func (b *Bus) Remove(addr uint8) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.chips, uint16(addr))
}

func (b *Bus) Chip(addr uint8) (*PCA9685, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	chip, ok := b.chips[uint16(addr)]
	return chip, ok
}

// SetFault makes every following transfer fail with err. A nil err clears
// the fault.
func (b *Bus) SetFault(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.fault = err
}

// Transfers returns the number of completed transfers.
func (b *Bus) Transfers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.txs
}

// Tx performs a register write (w = reg, data...) and/or a register read
// starting at w[0].
func (b *Bus) Tx(addr uint16, w, r []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.fault != nil {
		return b.fault
	}
	chip, ok := b.chips[addr]
	if !ok {
		return fmt.Errorf("%w 0x%02x", ErrNoDevice, addr)
	}
	if len(w) == 0 {
		return ErrEmptyTx
	}

	chip.mu.Lock()
	defer chip.mu.Unlock()
	chip.write(w[0], w[1:])
	if len(r) > 0 {
		chip.read(w[0], r)
	}
	b.txs++
	return nil
}

const (
	// Bit 4 of LEDn_ON_H / LEDn_OFF_H forces the output fully on / off.
	fullBit = 0x10

	defaultMode1    = pca9685.SLEEP | 0x01 // ALLCALL
	defaultMode2    = pca9685.OUTDRV
	defaultPrescale = 0x1E

	channels = 16
)

// PCA9685 is the register file of one chip.
type PCA9685 struct {
	mu     sync.Mutex
	addr   uint8
	regs   [256]byte
	writes int
}

func newPCA9685(addr uint8) *PCA9685 {
	c := &PCA9685{addr: addr}
	c.regs[pca9685.MODE1] = defaultMode1
	c.regs[pca9685.MODE2] = defaultMode2
	c.regs[pca9685.PRESCALE] = defaultPrescale
	// Power-on state of every channel is full off.
	for ch := uint8(0); ch < channels; ch++ {
		_, _, _, offH := pca9685.LED(ch)
		c.regs[offH] = fullBit
	}
	return c
}

func (c *PCA9685) autoIncrement() bool {
	return c.regs[pca9685.MODE1]&pca9685.AI != 0
}

// write stores data starting at reg. The pointer only advances when
// MODE1.AI is set, so without it every byte lands on reg.
func (c *PCA9685) write(reg uint8, data []byte) {
	for _, v := range data {
		c.store(reg, v)
		c.writes++
		if c.autoIncrement() {
			reg++
		}
	}
}

func (c *PCA9685) store(reg, v uint8) {
	switch {
	case reg == pca9685.PRESCALE:
		// The prescaler only latches while the oscillator sleeps.
		if c.regs[pca9685.MODE1]&pca9685.SLEEP != 0 {
			c.regs[reg] = v
		}
	case reg == pca9685.MODE1:
		// RESET is write-one-to-clear.
		c.regs[reg] = v &^ pca9685.RESET
	case reg >= pca9685.ALLLED && reg < pca9685.ALLLED+4:
		offset := reg - pca9685.ALLLED
		for ch := uint8(0); ch < channels; ch++ {
			onL, _, _, _ := pca9685.LED(ch)
			c.regs[onL+offset] = v
		}
	default:
		c.regs[reg] = v
	}
}

func (c *PCA9685) read(reg uint8, r []byte) {
	for i := range r {
		if reg >= pca9685.ALLLED && reg < pca9685.ALLLED+4 {
			// ALL_LED registers read back as zero.
			r[i] = 0
		} else {
			r[i] = c.regs[reg]
		}
		if c.autoIncrement() {
			reg++
		}
	}
}

func (c *PCA9685) Address() uint8 {
	return c.addr
}

// Register returns the raw value of reg.
func (c *PCA9685) Register(reg uint8) uint8 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.regs[reg]
}

// Channel returns the 13-bit ON and OFF counts of ch, full bits included.
func (c *PCA9685) Channel(ch uint8) (on, off uint16) {
	c.mu.Lock()
	defer c.mu.Unlock()
	onL, onH, offL, offH := pca9685.LED(ch)
	on = uint16(c.regs[onL]) | uint16(c.regs[onH]&0x1F)<<8
	off = uint16(c.regs[offL]) | uint16(c.regs[offH]&0x1F)<<8
	return on, off
}

// Duty returns the high time of ch in 1/4096 of a period: 0 is fully off and
// 4096 is fully on. Full off wins over full on, as on the chip.
func (c *PCA9685) Duty(ch uint8) uint16 {
	on, off := c.Channel(ch)
	switch {
	case off&(fullBit<<8) != 0:
		return 0
	case on&(fullBit<<8) != 0:
		return 4096
	}
	on &= 0x0FFF
	off &= 0x0FFF
	if off >= on {
		return off - on
	}
	return 4096 - on + off
}

// High reports whether ch is driven fully on.
func (c *PCA9685) High(ch uint8) bool {
	return c.Duty(ch) == 4096
}

func (c *PCA9685) Prescale() uint8 {
	return c.Register(pca9685.PRESCALE)
}

func (c *PCA9685) Sleeping() bool {
	return c.Register(pca9685.MODE1)&pca9685.SLEEP != 0
}

// Writes returns the number of register bytes written so far.
func (c *PCA9685) Writes() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.writes
}

// Snapshot returns the duty of every channel.
func (c *PCA9685) Snapshot() [channels]uint16 {
	var s [channels]uint16
	for ch := range s {
		s[ch] = c.Duty(uint8(ch))
	}
	return s
}
