// Copyright (c) 2026 Storyforge. All rights reserved.
// Author: dev@fablemint.io

package project

import (
	"context"

	"github.com/fablemint/storyforge/internal/stage"
)

// # Project Data Access

// Repository defines the data access contract for projects.
type Repository interface {

	/*
		Create persists a new project.

		Parameters:
		  - context: context.Context
		  - project: *Project

		Returns:
		  - error: Storage failure
	*/
	Create(context context.Context, project *Project) error

	/*
		FindByID returns the project with the given ID.

		Parameters:
		  - context: context.Context
		  - id: string (UUID)

		Returns:
		  - *Project: Hydrated entity
		  - error: ErrNotFound if missing
	*/
	FindByID(context context.Context, id string) (*Project, error)

	/*
		List returns projects ordered by creation time, newest first.

		Parameters:
		  - context: context.Context
		  - limit: int
		  - offset: int

		Returns:
		  - []*Project: Page of projects
		  - int: Total project count
		  - error: Storage failure
	*/
	List(context context.Context, limit, offset int) ([]*Project, int, error)

	/*
		Update persists changes to an existing project.

		Parameters:
		  - context: context.Context
		  - project: *Project

		Returns:
		  - error: Update failure
	*/
	Update(context context.Context, project *Project) error

	/*
		UpdateStage moves the project stage, guarded by the expected
		current stage. A concurrent advance loses the race and surfaces
		as an ErrNotFound-style zero-row conflict.

		Parameters:
		  - context: context.Context
		  - id: string (UUID)
		  - from: stage.Stage (Expected current stage)
		  - to: stage.Stage (Target stage)

		Returns:
		  - error: Conflict when the guard fails
	*/
	UpdateStage(context context.Context, id string, from, to stage.Stage) error

	/*
		Delete removes a project. Dependent rows (references, pages,
		candidates, jobs) cascade at the database level.

		Parameters:
		  - context: context.Context
		  - id: string (UUID)

		Returns:
		  - error: Removal failure
	*/
	Delete(context context.Context, id string) error

	/*
		StageSnapshot aggregates the entity and selection counts the
		stage exit predicates evaluate.

		Parameters:
		  - context: context.Context
		  - id: string (UUID)

		Returns:
		  - stage.Snapshot: Current aggregate state
		  - error: Storage failure
	*/
	StageSnapshot(context context.Context, id string) (stage.Snapshot, error)
}
