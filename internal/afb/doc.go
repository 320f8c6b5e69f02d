// Package afb wraps the raw transports with call tracking and assertions.
//
// J1 addresses calls by api and verb over the websocket-json1 protocol; API
// addresses them by verb over a wsapi connection. Both account every call
// and event on a session.Session, so a script can issue calls and then wait
// for the settle point:
//
//	api.CallSuccess("ping", true)
//	api.CallError("pingfail", true)
//	err := sess.WaitCompletion(ctx)
//
// CallMatch, CallSuccess and CallError report one assertion each to the
// session's diagnostics when the reply arrives.
package afb
