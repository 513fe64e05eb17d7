package build

import "errors"

var (
	// ErrMissingInput is reported when the configuration carries no archive.
	ErrMissingInput = errors.New("no web project archive was provided")
	// ErrCancelled marks work abandoned because the user cancelled the build.
	// It never surfaces as an error status.
	ErrCancelled = errors.New("build cancelled")
	// ErrBuildInProgress rejects a start while another attempt is running.
	ErrBuildInProgress = errors.New("a build is already running")
	ErrInvalidPlan     = errors.New("invalid phase plan")
	ErrNoArtifact      = errors.New("no artifact available")

	ErrInvalidPackageID = errors.New("invalid package id")
)
