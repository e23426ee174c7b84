// Package core provides the domain models and interfaces for the narrator
// pipeline: the Job record, its status state machine, progress events, the
// collaborator contracts, and the Storage interface everything runs against.
package core
