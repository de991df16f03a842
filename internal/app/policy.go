package app

import "github.com/dkeye/Portal/internal/core"

type BackpressureAction int

const (
	NoAction BackpressureAction = iota
	DropFrame
	// BufferAndKick stores the frame as undelivered and closes the
	// connection; the client replays it after reconnecting.
	BufferAndKick
)

type Policy interface {
	OnBackPressure(frame core.Frame, member *core.Session) BackpressureAction
}

type SimplePolicy struct{}

func (SimplePolicy) OnBackPressure(core.Frame, *core.Session) BackpressureAction {
	return BufferAndKick
}
