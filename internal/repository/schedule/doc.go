// Package schedule persists when each time rule last fired.
//
// The FileRepository stores the timestamps as YAML on disk so that a restart
// inside a rule's minute does not fire it twice. It exposes a Repository
// interface that the scheduler depends on.
package schedule
