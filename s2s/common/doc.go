// Package common provides core data structures and utilities shared across
// the Site-to-Site gateway. It defines configuration structures, the error
// taxonomy, logging and process wide metrics used by the other packages.
//
// Key Components:
//
//   - RemoteEndpoint: Value type identifying the remote peer (host, port) and
//     the logical port on that peer. Identifiers are uuid.UUID values.
//
//   - PortConfig / PeerConfig: Configuration of a remote port adapter and of a
//     Site-to-Site peer, both with a human readable String() form.
//
//   - Errors: Marker errors (ErrConfiguration, ErrHandshake, ErrProtocol,
//     ErrTimeout, ErrChecksumMismatch) built on cockroachdb/errors. Only
//     configuration errors are fatal, everything else is retryable.
//
//   - Logger: Custom logging implementation that plugs into Dragonboat's
//     logger facade so every package logs through logger.GetLogger(name).
//
//   - Metrics: Prometheus compatible counters and histograms (VictoriaMetrics)
//     for transactions, flow files, bytes and handshake failures.
package common
