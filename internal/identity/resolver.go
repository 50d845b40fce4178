// Package identity classifies inbound senders before routing.
//
// A sender is matched against active staff records; the receiving number
// decides whether the platform's central number or a business-specific
// number was contacted. Lookup failures abort processing rather than
// falling through to a customer flow, so a database blip can never leak a
// staff member into the wrong conversation.
package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/turnero/turnero/internal/models"
	"github.com/turnero/turnero/internal/store"
)

// ErrLookupFailed signals that identity could not be determined and the
// message must not be processed.
var ErrLookupFailed = errors.New("identity lookup failed")

// Resolver resolves sender phone numbers into routing identities.
type Resolver struct {
	store         store.Store
	centralNumber string
}

// NewResolver creates a Resolver. centralNumber is the platform's shared
// onboarding number in canonical form.
func NewResolver(st store.Store, centralNumber string) *Resolver {
	return &Resolver{store: st, centralNumber: centralNumber}
}

// NumberType classifies the receiving number.
func (r *Resolver) NumberType(receivingNumber string) models.NumberType {
	if receivingNumber == r.centralNumber {
		return models.NumberTypeCentral
	}
	return models.NumberTypeBusiness
}

// Resolve classifies the sender relative to the receiving number.
//
// On a business number, only the staff record for that business counts; a
// staff member of business A texting business B is a customer there. On the
// central number, membership in one business yields StaffOfOne and
// membership in several yields StaffOfMany.
func (r *Resolver) Resolve(ctx context.Context, senderPhone, receivingNumber string) (models.Identity, error) {
	if err := ctx.Err(); err != nil {
		return models.Identity{}, err
	}

	if r.NumberType(receivingNumber) == models.NumberTypeBusiness {
		business, err := r.store.GetBusinessByNumber(receivingNumber)
		if err != nil {
			slog.Error("Resolver business lookup failed", "error", err, "receivingNumber", receivingNumber)
			return models.Identity{}, fmt.Errorf("%w: %v", ErrLookupFailed, err)
		}
		if business == nil {
			slog.Warn("Resolver unknown receiving number", "receivingNumber", receivingNumber)
			return models.Identity{Kind: models.IdentityUnknown}, nil
		}
		staff, err := r.store.GetStaffByPhoneAndBusiness(senderPhone, business.ID)
		if err != nil {
			slog.Error("Resolver staff lookup failed", "error", err, "senderPhone", senderPhone)
			return models.Identity{}, fmt.Errorf("%w: %v", ErrLookupFailed, err)
		}
		if staff != nil {
			return models.Identity{Kind: models.IdentityKnownStaff, BusinessID: business.ID, Staff: staff}, nil
		}
		return models.Identity{Kind: models.IdentityOther, BusinessID: business.ID}, nil
	}

	records, err := r.store.GetStaffByPhone(senderPhone)
	if err != nil {
		slog.Error("Resolver staff lookup failed", "error", err, "senderPhone", senderPhone)
		return models.Identity{}, fmt.Errorf("%w: %v", ErrLookupFailed, err)
	}
	switch len(records) {
	case 0:
		return models.Identity{Kind: models.IdentityOther}, nil
	case 1:
		staff := records[0]
		return models.Identity{Kind: models.IdentityStaffOfOne, BusinessID: staff.BusinessID, Staff: &staff}, nil
	default:
		ids := make([]string, 0, len(records))
		for _, rec := range records {
			ids = append(ids, rec.BusinessID)
		}
		slog.Debug("Resolver sender belongs to multiple businesses", "senderPhone", senderPhone, "count", len(ids))
		return models.Identity{Kind: models.IdentityStaffOfMany, BusinessIDs: ids}, nil
	}
}
