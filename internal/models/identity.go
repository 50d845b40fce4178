// Package models defines identity structures for Turnero routing.
package models

import "time"

// PermissionLevel defines what a staff member may do within their business.
type PermissionLevel string

const (
	// PermissionOwner may perform every management action, including changing
	// other staff members' permission levels.
	PermissionOwner PermissionLevel = "owner"
	// PermissionAdmin may manage schedules and appointments for all staff.
	PermissionAdmin PermissionLevel = "admin"
	// PermissionStaff may view and modify only their own schedule.
	PermissionStaff PermissionLevel = "staff"
	// PermissionViewer has read-only access.
	PermissionViewer PermissionLevel = "viewer"
)

// IsValidPermissionLevel checks if the given permission level is supported.
func IsValidPermissionLevel(pl PermissionLevel) bool {
	switch pl {
	case PermissionOwner, PermissionAdmin, PermissionStaff, PermissionViewer:
		return true
	default:
		return false
	}
}

// StaffRecord represents one staff registration. A phone number may hold a
// StaffRecord at several businesses; (BusinessID, PhoneNumber) is unique.
type StaffRecord struct {
	ID              string          `json:"id"`
	BusinessID      string          `json:"business_id"`
	PhoneNumber     string          `json:"phone_number"`
	Name            string          `json:"name,omitempty"`
	PermissionLevel PermissionLevel `json:"permission_level"`
	// FirstMessageAt is set exactly once, when staff onboarding completes.
	// A nil value marks a staff member who has never messaged the platform.
	FirstMessageAt *time.Time `json:"first_message_at,omitempty"`
	IsActive       bool       `json:"is_active"`
}

// Onboarded reports whether the staff member has completed onboarding.
func (s *StaffRecord) Onboarded() bool {
	return s.FirstMessageAt != nil
}

// NumberType classifies the WhatsApp number that received a message.
type NumberType string

const (
	// NumberTypeCentral is the platform's shared number used for business
	// onboarding and cross-business management.
	NumberTypeCentral NumberType = "central"
	// NumberTypeBusiness is a number connected to a single business.
	NumberTypeBusiness NumberType = "business"
)

// IdentityKind tags the result of identity resolution.
type IdentityKind string

const (
	// IdentityUnknown means the message could not be attributed to any
	// business, e.g. it arrived on a number no business is connected to.
	IdentityUnknown IdentityKind = "unknown"
	// IdentityStaffOfOne means the sender is staff at exactly one business.
	IdentityStaffOfOne IdentityKind = "staff_of_one"
	// IdentityStaffOfMany means the sender is staff at two or more businesses.
	IdentityStaffOfMany IdentityKind = "staff_of_many"
	// IdentityKnownStaff means the sender is staff of the receiving business.
	IdentityKnownStaff IdentityKind = "known_staff"
	// IdentityOther means the sender is not staff of the receiving business
	// and is treated as an end-customer candidate.
	IdentityOther IdentityKind = "other"
)

// Identity is the tagged union produced by the identity resolver.
// Exactly one of the Kind-specific fields is meaningful:
// BusinessID for StaffOfOne/KnownStaff, BusinessIDs for StaffOfMany.
type Identity struct {
	Kind        IdentityKind `json:"kind"`
	BusinessID  string       `json:"business_id,omitempty"`
	BusinessIDs []string     `json:"business_ids,omitempty"`
	// Staff is the matched record for the receiving business, if any.
	Staff *StaffRecord `json:"staff,omitempty"`
}
