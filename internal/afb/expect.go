package afb

import (
	"github.com/redpesk-addons/afb-jscli/internal/diag"
	"github.com/redpesk-addons/afb-jscli/internal/match"
	"github.com/redpesk-addons/afb-jscli/internal/session"
)

// ErrEventNotReceived is the error of an EventRecord reported for an
// expected event that never arrived.
const ErrEventNotReceived = "not received"

// EventRecord is the assertion info reported for an expected event.
type EventRecord struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
	Error string `json:"error,omitempty"`
	Match any    `json:"match,omitempty"`
}

type expectation struct {
	name string
	spec match.Spec[any]
}

// expectations are the events declared on one connection, in declaration
// order. They are only touched from the loop goroutine.
type expectations struct {
	sess *session.Session
	list []expectation
}

func (e *expectations) add(name string, spec match.Spec[any]) {
	e.sess.ExpectEvent()
	e.list = append(e.list, expectation{name: name, spec: spec})
}

// check asserts the first expectation accepting the name of a received
// event. Events nobody expects are left to the plain event counter.
func (e *expectations) check(name string, data any) {
	for i, exp := range e.list {
		if exp.name != "" && exp.name != name {
			continue
		}
		e.list = append(e.list[:i], e.list[i+1:]...)
		ok := exp.spec.Matcher(match.Identity)(data)
		e.sess.Diag().Assert(ok, EventRecord{Event: name, Data: data, Match: exp.spec.Value()})
		return
	}
}

// fail reports every remaining expectation as a failure and forgets it.
func (e *expectations) fail(d *diag.Diagnostics) int {
	n := len(e.list)
	for _, exp := range e.list {
		d.Failure(EventRecord{Event: exp.name, Error: ErrEventNotReceived, Match: exp.spec.Value()})
	}
	e.list = nil
	return n
}
