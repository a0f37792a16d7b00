// Package wire implements the text plumbing shared by the proxy, its client
// and its upstream adapters.
//
// Lines may end in "\n", "\r" or "\r\n". A reader never waits for the byte
// after a bare "\r", so a peer that sends exactly one "\r"-terminated line and
// then waits for an answer is not stalled.
//
// Responses to proxy clients are framed by a terminator line, "done". The
// framing has no escaping and no length prefix: a body line equal to the
// terminator ends the message early for the reader.
package wire
