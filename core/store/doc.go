// Package store defines the collaborators of the usage predictor: a source of
// completed service history and a writer for the derived usage fields on the
// vehicle record. MemoryStore implements them for tests and local runs;
// persistent implementations live under infra/store.
package store
