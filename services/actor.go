package services

import (
	"context"
	"errors"

	"github.com/kendall-kelly/fleetglass-api/models"
	"github.com/kendall-kelly/fleetglass-api/repository"
)

// Actor is the caller of a workflow operation. A user may act on the customer side,
// the technician side, or both.
type Actor struct {
	User       *models.User
	Technician *models.Technician
}

// ResolveActor loads the user behind an Auth0 subject and, when present, its technician profile
func ResolveActor(ctx context.Context, store *repository.Store, auth0ID string) (*Actor, error) {
	user, err := store.Users().FindByAuth0ID(ctx, auth0ID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, notFound("USER_NOT_FOUND", "user profile not found, create a profile first")
		}
		return nil, err
	}

	actor := &Actor{User: user}
	technician, err := store.Technicians().FindByUserID(ctx, user.ID)
	switch {
	case err == nil:
		actor.Technician = technician
	case !errors.Is(err, repository.ErrNotFound):
		return nil, err
	}
	return actor, nil
}

// IsAdmin reports whether the actor has staff rights
func (a *Actor) IsAdmin() bool {
	return a != nil && a.User != nil && a.User.IsAdmin()
}

// CustomerID returns the tenant the actor belongs to on the customer side
func (a *Actor) CustomerID() (uint, bool) {
	if a == nil || a.User == nil || a.User.CustomerID == nil {
		return 0, false
	}
	return *a.User.CustomerID, true
}

// IsTechnician reports whether the actor has an active technician profile
func (a *Actor) IsTechnician() bool {
	return a != nil && a.Technician != nil && a.Technician.IsActive
}

// IsManager reports whether the actor is an active managing technician
func (a *Actor) IsManager() bool {
	return a.IsTechnician() && a.Technician.IsManager
}

// UserID returns the id of the acting user
func (a *Actor) UserID() *uint {
	if a == nil || a.User == nil {
		return nil
	}
	id := a.User.ID
	return &id
}

// canSupervise reports whether the actor may act on work assigned to technicianID
func (a *Actor) canSupervise(technicianID *uint) bool {
	if a.IsAdmin() {
		return true
	}
	if !a.IsTechnician() || technicianID == nil {
		return a.IsManager()
	}
	return *technicianID == a.Technician.ID || a.Technician.Manages(*technicianID)
}

func (a *Actor) ownsRepair(repair *models.Repair) bool {
	customerID, ok := a.CustomerID()
	return ok && repair.BelongsTo(customerID)
}
