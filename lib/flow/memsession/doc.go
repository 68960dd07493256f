// Package memsession provides an in-memory, transactional implementation of
// the flow session interfaces. A Repository holds an input queue and the
// committed output per relationship; sessions created from it pull flow
// files, modify them in private copies and publish the result on Commit.
//
// Rollback puts every pulled flow file back at the head of the input queue
// in its original order and drops flow files created by the session, so a
// failed invocation leaves the repository exactly as it found it.
//
// The repository is used by the CLI commands to feed files into a port and
// collect received files, and by tests to observe all-or-nothing behaviour.
package memsession
