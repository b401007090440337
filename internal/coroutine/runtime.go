package coroutine

import (
	"fmt"
	"strings"
)

// Mode selects how a Runtime builds handles.
type Mode string

const (
	// ModeST builds STCoroutine handles.
	ModeST Mode = "st"
	// ModeDummy builds DummyCoroutine handles; nothing is ever scheduled.
	ModeDummy Mode = "dummy"
)

// ParseMode accepts "st", "dummy" and the aliases "on"/"off". Empty input
// selects ModeST.
func ParseMode(value string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "st", "on", "enabled":
		return ModeST, nil
	case "dummy", "off", "disabled":
		return ModeDummy, nil
	default:
		return "", fmt.Errorf("unsupported coroutine mode %q", value)
	}
}

// Runtime builds handles that share a scheduler, logger and observer. It is
// the single place where the process decides whether cooperative execution
// is enabled.
type Runtime struct {
	mode     Mode
	defaults []Option
}

// NewRuntime returns a Runtime applying defaults to every handle it builds.
// Options passed to New override the defaults.
func NewRuntime(mode Mode, defaults ...Option) *Runtime {
	if mode == "" {
		mode = ModeST
	}
	return &Runtime{mode: mode, defaults: append([]Option(nil), defaults...)}
}

// Mode reports the runtime mode.
func (r *Runtime) Mode() Mode {
	return r.mode
}

// Enabled reports whether handles built by r can run.
func (r *Runtime) Enabled() bool {
	return r.mode != ModeDummy
}

// New returns an unstarted handle for handler.
func (r *Runtime) New(label string, handler Handler, opts ...Option) Coroutine {
	if !r.Enabled() {
		return NewDummy()
	}
	all := make([]Option, 0, len(r.defaults)+len(opts))
	all = append(all, r.defaults...)
	all = append(all, opts...)
	return NewSTCoroutine(label, handler, all...)
}
