// Package http provides the HTTP client used to probe and fetch files from
// the origin.
//
// # Probing
//
// [Client.Probe] issues a single GET, reads at most ProbeBodyLimit bytes of
// the body and classifies the answer:
//   - 200, 201: [Present]
//   - any other status below 500: [Absent]
//   - 5xx, timeout, DNS, refused connection, TLS failure: [Unreachable]
//
// Probe never returns an error. Its deadline is ProbeTimeout alone.
//
// # Downloading
//
// [Client.Get] performs exactly one request and hands back the streaming
// body. Dialing, the TLS handshake and the wait for headers share a single
// GetTimeout deadline, reported as [ErrHeaderTimeout]; reading the body is
// unbounded. Retries are the caller's business.
//
// # TLS
//
// Certificate validation is skipped when Options.InsecureSkipVerify is set,
// which is the default.
package http
