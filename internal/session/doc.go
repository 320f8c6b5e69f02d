// Package session synchronizes a linear test script with asynchronous
// completions and events.
//
// A Session owns two counters:
//
//   - pending calls: incremented by EnterCall when a call is issued,
//     decremented by LeaveCall once its completion callback has run;
//   - expected events: incremented by ExpectEvent, decremented (never below
//     zero) by GotEvent when an event arrives.
//
// The Wait family pumps the event loop while a predicate holds. The usual
// settle point between two phases of a script is WaitCompletion, which
// returns once every issued call has completed and every declared event has
// arrived:
//
//	api.CallSuccess("broadcast", map[string]any{"name": "event", "data": true})
//	s.ExpectEvent()
//	if err := s.WaitCompletion(ctx); err != nil {
//	    return err
//	}
//
// A call that never completes, or an event that never arrives, blocks
// WaitCompletion until ctx is done. Scripts bound their waits with
// context.WithTimeout.
//
// Counters are only mutated from the pumping goroutine, either by the script
// itself or by callbacks run inside PumpOnce. A Session is not safe for
// concurrent use.
package session
