// Package compute defines backplanes which run systems.
package compute

import (
	"context"

	"github.com/helxplatform/appstore/pkg/api/types"
	"github.com/helxplatform/appstore/pkg/model"
)

// Backend runs systems on a compute backplane.
//
// Errors are *errors.TychoError of the kind of the operation.
type Backend interface {
	// Start launches a system, and returns where its containers are reachable.
	//
	// When it fails, everything created for the system is deleted.
	Start(ctx context.Context, system *model.System) (*types.StartResult, error)

	// Status lists running systems.
	//
	// Empty name means "all systems", narrowed by username if it is given.
	Status(ctx context.Context, req types.StatusRequest) ([]types.ServiceStatus, error)

	// Delete removes everything of the system identified by name.
	//
	// Deleting a system which does not exist is not an error.
	Delete(ctx context.Context, name string) error

	// Modify patches labels and resources of running systems.
	Modify(ctx context.Context, m *model.ModifySystem) (*types.ModifyResult, error)
}
