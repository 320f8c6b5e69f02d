// Package scenario runs declarative test scripts against afb apis.
//
// A scenario names its connections and lists steps executed in order:
//
//	name: hello-basics
//	description: ping family of the hello api
//	options:
//	  stop-on-failure: false
//	  mode: tap
//	connections:
//	  - name: hello
//	    kind: api
//	    uri: unix:@hello
//	steps:
//	  - op: call_success
//	    conn: hello
//	    verb: ping
//	    args: true
//	  - op: call_error
//	    conn: hello
//	    verb: pingfail
//	  - op: expect_event
//	    conn: hello
//	    event: hello/news
//	    match: {level: 1}
//	  - op: call_success
//	    conn: hello
//	    verb: broadcast
//	    args: {name: news, data: {level: 1}}
//	  - op: wait_completion
//
// Calls are asynchronous: call steps return as soon as the call is issued
// and wait steps pump until the awaited replies and events arrive. Every
// run ends with an implicit wait_completion. An expect_event naming a
// connection is asserted when a matching event arrives on it, and reported
// as a failure if none did by the end of the run.
//
// Scenarios are written in YAML (.yaml, .yml) or CUE (.cue).
package scenario
