package deploy

import "errors"

// Sentinel errors
var (
	ErrUnresolvedDependency   = errors.New("deploy: unresolved dependency")
	ErrDeploymentActionFailed = errors.New("deploy: deployment action failed")
	ErrCyclicDependency       = errors.New("deploy: cyclic dependency")
	ErrAlreadyRecorded        = errors.New("deploy: component already recorded")
	ErrDuplicateDescriptor    = errors.New("deploy: duplicate descriptor")
)
