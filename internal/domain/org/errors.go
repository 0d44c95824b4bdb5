package org

import "errors"

var (
	ErrCycleDetected      = errors.New("reassignment would create a supervisor cycle")
	ErrSupervisorNotFound = errors.New("supervisor not found")
	ErrSupervisorInactive = errors.New("supervisor is not active")
	ErrHasDependents      = errors.New("identity has direct reports or leave history")
	ErrSelfDelete         = errors.New("cannot delete own account")
)
