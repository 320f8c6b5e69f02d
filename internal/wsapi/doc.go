// Package wsapi implements the verb-addressed afb api protocol.
//
// Frames are JSON objects carried in websocket text messages, over TCP or
// unix sockets. The protocol is symmetric: both peers may call, reply,
// manage events, sessions and tokens. A client obtains a Conn with Dial, a
// service accepts them through a Server.
//
// Every callback (replies, descriptions, Handler methods) is posted to the
// loop.Loop given at construction and runs on the goroutine pumping it.
package wsapi
