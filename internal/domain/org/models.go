package org

// Node is one row of the supervisor forest.
type Node struct {
	ParentID string
	Active   bool
}

// Snapshot is the whole forest as id -> node, read under the hierarchy lock.
type Snapshot map[string]Node

// Selection names the identities a reassignment moves: explicit ids, or
// every direct report of ReportsOf.
type Selection struct {
	IDs       []string
	ReportsOf string
}

type Dependents struct {
	DirectReports int `json:"directReports"`
	AsRequester   int `json:"asRequester"`
	AsApprover    int `json:"asApprover"`
}

func (d Dependents) None() bool {
	return d.DirectReports == 0 && d.AsRequester == 0 && d.AsApprover == 0
}
