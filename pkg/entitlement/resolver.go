package entitlement

import (
	"fmt"

	"github.com/reportgate/reportgate/pkg/errs"
	"github.com/reportgate/reportgate/pkg/identity"
	"github.com/reportgate/reportgate/pkg/reports"
	"github.com/reportgate/reportgate/pkg/units"
)

// Policy authorizes a principal for a single report, optionally pinned to a
// unit (unitID 0 means pick one). Each role gets its own implementation.
type Policy interface {
	Authorize(principal identity.Principal, reportID, unitID int64) (*Decision, error)
	VisibleReports(principal identity.Principal) ([]*reports.Report, error)
	CanAccessUnit(principal identity.Principal, unitID int64) (bool, error)
}

// Resolver dispatches to the policy matching the principal's role.
type Resolver struct {
	admin  Policy
	member Policy
}

// NewResolver creates a Resolver over the membership graph and report catalog.
func NewResolver(graph Graph, catalog Catalog) *Resolver {
	return &Resolver{
		admin:  &AdminPolicy{graph: graph, catalog: catalog},
		member: &MemberPolicy{graph: graph, catalog: catalog},
	}
}

func (r *Resolver) policyFor(principal identity.Principal) Policy {
	if principal.Role == identity.RoleAdmin {
		return r.admin
	}
	return r.member
}

// Authorize decides access to a report for a principal. unitID 0 lets the
// policy choose the unit.
func (r *Resolver) Authorize(principal identity.Principal, reportID, unitID int64) (*Decision, error) {
	return r.policyFor(principal).Authorize(principal, reportID, unitID)
}

// VisibleReports lists the reports the principal may see, deduplicated,
// in the order their units were granted.
func (r *Resolver) VisibleReports(principal identity.Principal) ([]*reports.Report, error) {
	return r.policyFor(principal).VisibleReports(principal)
}

// CanAccessUnit reports whether the principal may browse a unit's content.
func (r *Resolver) CanAccessUnit(principal identity.Principal, unitID int64) (bool, error) {
	return r.policyFor(principal).CanAccessUnit(principal, unitID)
}

// AdminPolicy grants everything. An admin still gets a row-level identity
// when a membership edge exists for the requested unit, so admins can
// preview a unit's filtered view.
type AdminPolicy struct {
	graph   Graph
	catalog Catalog
}

func (p *AdminPolicy) Authorize(principal identity.Principal, reportID, unitID int64) (*Decision, error) {
	decision := &Decision{Granted: true, UnitID: unitID}
	if unitID == 0 {
		return decision, nil
	}
	param, err := p.graph.RLSParam(principal.UserID, unitID)
	if err != nil {
		if errs.Is(err, errs.KindNotFound) {
			return decision, nil
		}
		return nil, fmt.Errorf("failed to resolve admin identity: %w", err)
	}
	decision.RLSFilterParam = param
	decision.HasRLSIdentity = true
	return decision, nil
}

func (p *AdminPolicy) VisibleReports(identity.Principal) ([]*reports.Report, error) {
	return p.catalog.ListReports()
}

func (p *AdminPolicy) CanAccessUnit(identity.Principal, int64) (bool, error) {
	return true, nil
}

// MemberPolicy grants a report only when the member and the report share a
// unit, and always attaches the member's row-level identity for that unit.
type MemberPolicy struct {
	graph   Graph
	catalog Catalog
}

func (p *MemberPolicy) Authorize(principal identity.Principal, reportID, unitID int64) (*Decision, error) {
	memberships, err := p.graph.UnitsOfUser(principal.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to load memberships: %w", err)
	}
	reportUnits, err := p.catalog.UnitsOfReport(reportID)
	if err != nil {
		return nil, fmt.Errorf("failed to load report units: %w", err)
	}
	reportSet := make(map[int64]bool, len(reportUnits))
	for _, id := range reportUnits {
		reportSet[id] = true
	}

	chosen := p.chooseUnit(memberships, reportSet, unitID)
	if chosen == nil {
		return nil, errs.AccessDenied("no access to report %d", reportID)
	}
	if chosen.RLSFilterParam == "" {
		// Granted but unembeddable: the edge exists with no filter value.
		return nil, errs.Configuration("membership of unit %d has no rls filter param", chosen.Unit.ID)
	}
	return &Decision{
		Granted:        true,
		UnitID:         chosen.Unit.ID,
		RLSFilterParam: chosen.RLSFilterParam,
		HasRLSIdentity: true,
	}, nil
}

// chooseUnit returns the membership to embed through. With an explicit unit
// it must match both sides; otherwise the first granted unit wins.
func (p *MemberPolicy) chooseUnit(memberships []*units.Membership, reportSet map[int64]bool, unitID int64) *units.Membership {
	for _, m := range memberships {
		if unitID != 0 && m.Unit.ID != unitID {
			continue
		}
		if reportSet[m.Unit.ID] {
			return m
		}
		if unitID != 0 {
			return nil
		}
	}
	return nil
}

func (p *MemberPolicy) VisibleReports(principal identity.Principal) ([]*reports.Report, error) {
	memberships, err := p.graph.UnitsOfUser(principal.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to load memberships: %w", err)
	}
	seen := make(map[int64]bool)
	var visible []*reports.Report
	for _, m := range memberships {
		unitReports, err := p.catalog.ReportsForUnit(m.Unit.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to list reports for unit %d: %w", m.Unit.ID, err)
		}
		for _, r := range unitReports {
			if seen[r.ID] {
				continue
			}
			seen[r.ID] = true
			visible = append(visible, r)
		}
	}
	return visible, nil
}

func (p *MemberPolicy) CanAccessUnit(principal identity.Principal, unitID int64) (bool, error) {
	memberships, err := p.graph.UnitsOfUser(principal.UserID)
	if err != nil {
		return false, fmt.Errorf("failed to load memberships: %w", err)
	}
	for _, m := range memberships {
		if m.Unit.ID == unitID {
			return true, nil
		}
	}
	return false, nil
}
