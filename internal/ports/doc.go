// Package ports defines the interfaces (ports) that connect the lifecycle
// core to infrastructure adapters.
//
// # Port Interfaces
//
//   - [Directory]: scoped name directory (catalog, lookup, uncatalog)
//   - [ObjectTypes]: validity check for object handles
//   - [MailboxResolver]: resolves a handle to a deliverable mailbox
//   - [NotificationSource]: blocking source of system notifications
//   - [TestRoutine]: the external routine the worker loop invokes
//   - [Platform]: platform timing information
//   - [Exiter]: process termination
//   - [Logger]: structured logging abstraction
//
// The application layer (internal/app) depends only on these interfaces.
// Infrastructure adapters (internal/adapters) implement them.
package ports
