// Package engine is the request-handler engine shared by local interceptors
// and server sessions.
//
// An HTTPRequestHandler owns one method+path declaration: its restrictions,
// delay, response and times expectation. A Registry keeps handlers in
// declaration order and dispatches each intercepted request to the first
// handler that claims it. A handler claims a request when every restriction
// matches, it has a response, and its times expectation still has room.
//
// After a test, CheckTimes verifies the expectations and returns a
// *TimesCheckError whose message lists why evaluated requests were not
// claimed when request saving is enabled.
package engine
