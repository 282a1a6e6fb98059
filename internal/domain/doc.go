// Package domain contains the core value types shared by the testvisor
// lifecycle core.
//
// This package is the innermost layer. It has no dependencies on
// infrastructure concerns (file system, signals, logging) and holds only the
// vocabulary the rest of the module speaks.
//
// # Types
//
//   - [Phase]: how far process startup or shutdown has progressed
//   - [Handle]: a reference to a process, thread or mailbox object
//   - [Scope]: the directory within which names are unique
//   - [Notification]: an external system event delivered to the main thread
//   - [TerminationSignal]: the message a worker posts to request teardown
package domain
