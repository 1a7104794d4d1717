package bootstrap

import (
	"github.com/Ahnappi/flash-netty/util"
)

// LogObserver reports bind events as structured log events:
//
//	{"event":"bind_success","port":8002}
//	{"event":"bind_failure","port":8000,"error":"..."}
//	{"event":"bind_exhausted","rangeStart":8000,"rangeEnd":8010}
type LogObserver struct {
	Logger *util.Logger
}

// BindSuccess logs the port the listener bound.
func (o LogObserver) BindSuccess(port int) {
	o.Logger.Event("bind_success", map[string]interface{}{"port": port})
}

// BindFailure logs one failed attempt and its cause.
func (o LogObserver) BindFailure(port int, err error) {
	o.Logger.Event("bind_failure", map[string]interface{}{"port": port, "error": err.Error()})
}

// BindExhausted logs the range that was tried without success.
func (o LogObserver) BindExhausted(rangeStart, rangeEnd int) {
	o.Logger.Event("bind_exhausted", map[string]interface{}{
		"rangeStart": rangeStart,
		"rangeEnd":   rangeEnd,
	})
}

// ObserverFuncs adapts plain functions to Observer.  Nil fields are
// skipped.
type ObserverFuncs struct {
	OnSuccess   func(port int)
	OnFailure   func(port int, err error)
	OnExhausted func(rangeStart, rangeEnd int)
}

func (f ObserverFuncs) BindSuccess(port int) {
	if f.OnSuccess != nil {
		f.OnSuccess(port)
	}
}

func (f ObserverFuncs) BindFailure(port int, err error) {
	if f.OnFailure != nil {
		f.OnFailure(port, err)
	}
}

func (f ObserverFuncs) BindExhausted(rangeStart, rangeEnd int) {
	if f.OnExhausted != nil {
		f.OnExhausted(rangeStart, rangeEnd)
	}
}
