// Package sender is the queue worker side of dispatch. It takes one
// dispatch.SendOperation at a time, resolves the owner's Evolution API
// instance, loads media from file storage when needed and delivers the
// message.
//
// Every attempt ends in an Outcome. Only TransportError is retried by the
// queue. Content and configuration failures are marked permanent and land in
// the dead letter queue on the first attempt.
//
// Audio media is converted to an Opus voice note before sending. If the
// conversion fails the original bytes and mime type are sent and a single
// error is logged.
package sender
