//go:build !uno

package core

// MaxShields is one slot per address in the shield's 0x60..0x7F jumper range.
const MaxShields = 32
