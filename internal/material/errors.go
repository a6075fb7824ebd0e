package material

import "errors"

var (
	// ErrNoShadingEngine is returned when a mesh is expected to be a member
	// of a shading engine but is not.
	ErrNoShadingEngine = errors.New("mesh has no shading engine")

	// ErrMissingDependency is returned by New when a required collaborator
	// is not set.
	ErrMissingDependency = errors.New("missing resolver dependency")

	// ErrBuildFailed marks a material whose build step could not acquire a
	// renderer resource. The binding falls back to the default material.
	ErrBuildFailed = errors.New("material build failed")
)

// IsBuildFailure reports whether err came from a failed material build.
func IsBuildFailure(err error) bool {
	return errors.Is(err, ErrBuildFailed)
}
