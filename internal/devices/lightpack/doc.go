// Package lightpack adapts a Lightpack ambient backlight, driven through the
// Prismatik text API, to the bridge's entity model.
//
// # Protocol
//
// Prismatik listens on TCP (default port 3636) and speaks a line protocol:
//
//	-> (greeting) Lightpack API v1.4 - Prismatik API v2.2 (type "help" for more info)
//	<- apikey:secret        -> ok
//	<- getstatus            -> status:on
//	<- lock                 -> lock:success | lock:busy
//	<- setbrightness:50     -> ok | busy | not locked | error
//	<- getcolors            -> colors:0-255,0,0;1-255,0,0;
//	<- setcolor:1-0,255,0;  -> ok
//	<- setpersistonunlock:on -> ok
//	<- unlock               -> unlock:success | unlock:not locked
//
// Client holds one such session. A reply the device produced but that does not
// confirm the request is a CommandFailed error; a broken transport is a
// CannotConnect error and drops the session.
//
// # Adapter
//
// Light keeps two sessions: one for polling and one for commands, so a
// command holding the device lock never blocks status reads. Every mutating
// command runs inside a lock/unlock bracket.
//
// From API 2.2 the poll also reads the average LED colour and whether colours
// persist past unlock. Setting a colour turns persistence on; switching
// effect turns it back off so the profile shows through.
package lightpack
