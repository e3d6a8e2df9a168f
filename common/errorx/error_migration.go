package errorx

import (
	"fmt"
	"strings"

	"opencsg.com/pulp-migrator/common/types"
)

const errMigrationPrefix = "MIG-ERR"

const (
	configurationError = iota
	planValidationError
	artifactValidationError
	reservationBusy
)

var (
	// legacy database connection settings are missing or contradict
	// each other; raised before any work begins
	ErrConfiguration error = CustomError{Prefix: errMigrationPrefix, Code: configurationError}
	// the plan references pulp2 resources that no longer exist
	ErrPlanValidation error = CustomError{Prefix: errMigrationPrefix, Code: planValidationError}
	// digest or size mismatch detected after copying an artifact
	ErrArtifactValidation error = CustomError{Prefix: errMigrationPrefix, Code: artifactValidationError}
	// another migration or reset holds the reservation token
	ErrReservationBusy error = CustomError{Prefix: errMigrationPrefix, Code: reservationBusy}
)

func Configuration(err error, ctx context) error {
	return CustomError{Prefix: errMigrationPrefix, Code: configurationError, Context: ctx, err: err}
}

func ReservationBusy(resource string) error {
	return CustomError{
		Prefix:  errMigrationPrefix,
		Code:    reservationBusy,
		Context: Ctx().Set("resource", resource),
	}
}

// PlanValidationError carries the structured missing-resource report of
// a validation run.
type PlanValidationError struct {
	Missing types.MissingResources
}

func (e *PlanValidationError) Error() string {
	var parts []string
	if len(e.Missing.Repositories) > 0 {
		parts = append(parts, fmt.Sprintf("repositories: %s", strings.Join(e.Missing.Repositories, ", ")))
	}
	if len(e.Missing.Importers) > 0 {
		parts = append(parts, fmt.Sprintf("importers: %s", strings.Join(e.Missing.Importers, ", ")))
	}
	if len(e.Missing.Distributors) > 0 {
		parts = append(parts, fmt.Sprintf("distributors: %s", strings.Join(e.Missing.Distributors, ", ")))
	}
	return "plan references resources missing from pulp2: " + strings.Join(parts, "; ")
}

func (e *PlanValidationError) Is(target error) bool {
	return target == ErrPlanValidation
}

// ArtifactValidationError is fatal to the current content item but not
// to the task unless skip_corrupted is off.
type ArtifactValidationError struct {
	Path     string
	Expected string
	Actual   string
}

func (e *ArtifactValidationError) Error() string {
	return fmt.Sprintf("artifact %s failed validation: expected digest %s, got %s", e.Path, e.Expected, e.Actual)
}

func (e *ArtifactValidationError) Is(target error) bool {
	return target == ErrArtifactValidation
}

func ArtifactValidation(path, expected, actual string) error {
	return &ArtifactValidationError{Path: path, Expected: expected, Actual: actual}
}
