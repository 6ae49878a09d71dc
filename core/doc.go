// Package core defines the shared data model of parley: chat and message
// entities, the agent/tool catalog records, the progress and tool event
// variants streamed between layers, and the collaborator interfaces
// (Store, MemoryStore) implemented by sibling packages.
package core
