// Package client is a Go SDK for the todolist HTTP API.
//
// A Client performs unauthenticated calls (signup, login, refresh). Login returns a Session,
// which attaches the access token to every request. When the API answers 401 the Session
// refreshes its tokens once and replays the request. Concurrent refreshes are coalesced
// through a Coordinator; the default LocalCoordinator only coalesces within one process.
package client
