//go:build uno

package core

// MaxShields is reduced on boards with 2KB of RAM.
const MaxShields = 4
