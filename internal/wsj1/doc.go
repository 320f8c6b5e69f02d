// Package wsj1 is a client for the afb websocket JSON protocol (subprotocol
// "x-afb-ws-json1"), where verbs are addressed by api and verb name.
//
// Every frame is a JSON array whose first element is the message code:
//
//	[2, "id", "api/verb", args]   call
//	[3, "id", reply]              successful reply
//	[4, "id", reply]              error reply
//	[5, "api/event", data]        event
//
// Replies are afb reply objects, for instance
// {"jtype":"afb-reply","request":{"status":"success"},"response":true}.
//
// Reply and event callbacks are posted to a loop.Loop and run inside its
// PumpOnce. The completion callback of a call runs exactly once: when the
// connection breaks, pending calls complete with a reply whose status is
// "disconnected".
package wsj1
