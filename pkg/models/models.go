// Package models defines the Octopus domain entities and their invariants.
//
// All entities carry an immutable UUID primary key and a creation timestamp;
// mutable entities also carry an update timestamp. The persistence store
// (pkg/store) exclusively owns all entities.
package models

// AllModels returns all GORM models for auto-migration.
func AllModels() []any {
	return []any{
		&Workspace{},
		&Project{},
		&User{},
		&WorkspaceMembership{},
		&ProjectMembership{},
		&File{},
		&FileLink{},
		&UploadSession{},
		&Model{},
		&ModelVersion{},
		&OAuthApp{},
		&AuthorizationCode{},
		&Job{},
	}
}
