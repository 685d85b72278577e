package flow

import (
	"context"

	"chronoreel/internal/gateway"
	"chronoreel/internal/model"
)

// Gateway is the slice of the backend client the generation flow depends on.
// *gateway.Client satisfies it; tests substitute scripted fakes.
type Gateway interface {
	CreateProject(ctx context.Context, req gateway.CreateProjectRequest) (model.Project, error)
	Project(ctx context.Context, id int64) (model.Project, error)
	StartImageGeneration(ctx context.Context, projectID int64) (model.Task, error)
	RegenerateAsset(ctx context.Context, projectID, assetID int64) (model.Task, error)
	Assets(ctx context.Context, projectID int64, assetType string) ([]model.Asset, error)
	CreateVideo(ctx context.Context, projectID int64, req gateway.CreateVideoRequest) (model.Task, error)
	TaskStatus(ctx context.Context, taskID string) (model.Task, error)
}
