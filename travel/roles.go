/*
roles.go - Viewer scopes as a closed sum type

PURPOSE:
  Replaces per-request string role branching with a small set of concrete
  scope types carrying capability checks. Handlers build a Role once from
  the (externally authenticated) caller and pass it down; the core never
  compares role strings.

THE SUM:
  Master        - sees and manages everything
  CompanyScope  - one company's data
  EmployeeScope - one employee's own data
*/
package travel

// Role is the capability-checked viewer scope. Implementations are the three
// concrete scopes below; the core treats the set as closed.
type Role interface {
	// CanSeeCompany reports whether company-wide data is visible.
	CanSeeCompany(id CompanyID) bool

	// CanManageTrip reports whether the role may review, reopen, or batch-edit
	// the trip's days.
	CanManageTrip(t *Trip) bool

	// CanActFor reports whether the role may create trips or expenses on
	// behalf of the employee.
	CanActFor(e *Employee) bool
}

// Master sees everything. Used by the operator back office.
type Master struct{}

func (Master) CanSeeCompany(CompanyID) bool { return true }
func (Master) CanManageTrip(*Trip) bool     { return true }
func (Master) CanActFor(*Employee) bool     { return true }

// CompanyScope restricts visibility and management to one company.
type CompanyScope struct {
	CompanyID CompanyID
}

func (s CompanyScope) CanSeeCompany(id CompanyID) bool { return s.CompanyID == id }
func (s CompanyScope) CanManageTrip(t *Trip) bool      { return t != nil && t.CompanyID == s.CompanyID }
func (s CompanyScope) CanActFor(e *Employee) bool      { return e != nil && e.CompanyID == s.CompanyID }

// EmployeeScope restricts a caller to their own records. Employees never
// manage reviews, even on their own trips.
type EmployeeScope struct {
	EmployeeID EmployeeID
	CompanyID  CompanyID
}

func (EmployeeScope) CanSeeCompany(CompanyID) bool { return false }
func (EmployeeScope) CanManageTrip(*Trip) bool     { return false }
func (s EmployeeScope) CanActFor(e *Employee) bool {
	return e != nil && e.ID == s.EmployeeID
}
