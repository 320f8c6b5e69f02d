// Package services provides demo apis served over wsapi connections.
//
//   - echo replies with the call arguments and the verb as info.
//   - hello offers the ping family plus event management verbs.
//   - pubsub treats every verb as a topic clients SUBSCRIBE to and PUSH on.
//
// A Service is attached to every accepted connection; connections of one
// service share its events.
package services
