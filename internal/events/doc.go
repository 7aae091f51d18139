// Package events provides types and interfaces for an event-driven architecture.
//
// Components emit events without knowing which handlers will process them.
// The persister uses this to raise quota warnings that the notification
// center turns into user-facing prompts, without either package importing
// the other.
//
// The primary components are:
// - Event: a typed, JSON-encoded occurrence
// - EventHandler: interface for components that can handle events
// - EventEmitter: interface for components that can emit events
package events
