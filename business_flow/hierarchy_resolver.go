package businessflow

import (
	"context"

	"github.com/amirphl/commission-engine/models"
	"github.com/amirphl/commission-engine/repository"
)

// HierarchyResolver builds the ordered beneficiary chain of a distribution
type HierarchyResolver interface {
	Resolve(ctx context.Context, customerID uint) ([]Beneficiary, error)
}

// GeographicHierarchyResolver resolves the chain from the customer's location:
// pincode → service agent, (district, taluk) → taluk manager,
// district → branch manager, then the global admin. Every step must match an
// active user; a gap fails the whole resolution.
type GeographicHierarchyResolver struct {
	userRepo repository.UserRepository
}

func NewGeographicHierarchyResolver(userRepo repository.UserRepository) HierarchyResolver {
	return &GeographicHierarchyResolver{userRepo: userRepo}
}

func (r *GeographicHierarchyResolver) Resolve(ctx context.Context, customerID uint) ([]Beneficiary, error) {
	customer, err := r.userRepo.ByID(ctx, customerID)
	if err != nil {
		return nil, NewBusinessError("HIERARCHY_LOOKUP_FAILED", "Failed to load customer", err)
	}
	if customer == nil || !customer.Active() {
		return nil, newBeneficiaryNotFound(models.UserRoleRegisteredUser)
	}

	agent, err := r.lookup(ctx, models.UserRoleServiceAgent, models.UserFilter{Pincode: nonEmpty(customer.Pincode)})
	if err != nil {
		return nil, err
	}
	talukManager, err := r.lookup(ctx, models.UserRoleTalukManager, models.UserFilter{
		District: nonEmpty(agent.District),
		Taluk:    nonEmpty(agent.Taluk),
	})
	if err != nil {
		return nil, err
	}
	branchManager, err := r.lookup(ctx, models.UserRoleBranchManager, models.UserFilter{District: nonEmpty(talukManager.District)})
	if err != nil {
		return nil, err
	}
	admin, err := r.lookup(ctx, models.UserRoleAdmin, models.UserFilter{})
	if err != nil {
		return nil, err
	}

	chain := []Beneficiary{
		{UserID: agent.ID, Role: models.UserRoleServiceAgent},
		{UserID: talukManager.ID, Role: models.UserRoleTalukManager},
		{UserID: branchManager.ID, Role: models.UserRoleBranchManager},
		{UserID: admin.ID, Role: models.UserRoleAdmin},
	}
	// The customer never earns twice when it is its own agent
	if customer.ID != agent.ID {
		chain = append(chain, Beneficiary{UserID: customer.ID, Role: models.UserRoleRegisteredUser})
	}

	return chain, nil
}

// lookup finds the first active user of role matching the location filter.
// A location filter with a missing field matches nobody.
func (r *GeographicHierarchyResolver) lookup(ctx context.Context, role models.UserRole, filter models.UserFilter) (*models.User, error) {
	if role != models.UserRoleAdmin && filter.Pincode == nil && filter.District == nil {
		return nil, newBeneficiaryNotFound(role)
	}
	if role == models.UserRoleTalukManager && filter.Taluk == nil {
		return nil, newBeneficiaryNotFound(role)
	}

	filter.Role = &role
	user, err := r.userRepo.FirstActive(ctx, filter)
	if err != nil {
		return nil, NewBusinessErrorf("HIERARCHY_LOOKUP_FAILED", "Failed to look up %s", err, role)
	}
	if user == nil {
		return nil, newBeneficiaryNotFound(role)
	}
	return user, nil
}

func nonEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
