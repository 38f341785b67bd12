// Package ports defines the interfaces between the workflow core and its
// collaborators: the session store, the audit log, the distributed locker,
// the safety evaluators, the pharmacy backend and the reviewer channel.
//
// The core depends only on these interfaces. Adapters live in
// pkg/adapters; reference evaluator implementations live in pkg/evaluators.
package ports
