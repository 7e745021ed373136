// Package coordinator makes authenticated HTTP calls resilient to access-token
// expiry.
//
// # Protocol
//
// Every request carries "Authorization: Bearer <token>" from the token source.
// A 401 on the first attempt means the token expired. The first request to
// see it becomes the leader: it switches the coordinator from idle to
// refreshing, performs exactly one refresh call, commits the new token, and
// replays every request that queued up behind it. Requests that see a 401
// while a refresh is running join the pending queue instead of refreshing.
// A 401 on a replay is terminal.
//
// # State machine
//
//	idle --401--> refreshing(flight) --success--> idle, generation+1, replay queue
//	                                 --failure--> idle, reject queue, expire once
//
// The state check-and-set happens under one mutex before any network I/O.
// The generation counter lets a request whose 401 raced with an already
// finished refresh replay with the current token instead of refreshing again.
//
// # What this package must NOT do
//
//   - Interpret any status other than 401. Business errors pass through.
//   - Retry a request more than once.
//   - Persist tokens or clear sessions itself; those go through Deps.
package coordinator
