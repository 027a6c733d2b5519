// Package entitlement decides, for a user and a report, whether access is
// granted and which row-level identity applies. All visibility rules live
// here; storage packages stay role-blind.
package entitlement

import (
	"github.com/reportgate/reportgate/pkg/reports"
	"github.com/reportgate/reportgate/pkg/units"
)

// Decision is the outcome of an authorization check. When HasRLSIdentity is
// false the embed token is requested without an effective identity and the
// dataset's own rules (if any) apply unfiltered.
type Decision struct {
	Granted        bool
	UnitID         int64
	RLSFilterParam string
	HasRLSIdentity bool
}

// Graph exposes the user/unit membership edges the resolver walks.
type Graph interface {
	UnitsOfUser(userID int64) ([]*units.Membership, error)
	RLSParam(userID, unitID int64) (string, error)
}

// Catalog exposes report/unit visibility joins.
type Catalog interface {
	UnitsOfReport(reportID int64) ([]int64, error)
	ReportsForUnit(unitID int64) ([]*reports.Report, error)
	ListReports() ([]*reports.Report, error)
}
