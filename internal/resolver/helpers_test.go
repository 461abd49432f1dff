package resolver

import (
	"agenthub/internal/models"
	"agenthub/internal/repository"
)

func listResolved() repository.ListActivitiesParams {
	kind := models.ActivitySignalResolved
	return repository.ListActivitiesParams{Kind: &kind}
}
