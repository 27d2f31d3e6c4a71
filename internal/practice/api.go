package practice

import (
	"context"
	"encoding/json"
	"time"
)

// API is the practice-management surface consumed by the booking wizard.
type API interface {
	FetchVendorCredentials(ctx context.Context, botID string) ([]VendorCredential, error)
	ExchangeForToken(ctx context.Context, practice string, cred VendorCredential) (string, error)
	FetchLocations(ctx context.Context, auth Auth) ([]Location, error)
	FetchProviders(ctx context.Context, auth Auth, locationID string) ([]Provider, error)
	FetchReasons(ctx context.Context, auth Auth) ([]Reason, error)
	FetchAvailableDates(ctx context.Context, auth Auth, q AvailableDatesQuery) ([]time.Time, error)
	FetchOpenSlots(ctx context.Context, auth Auth, q OpenSlotsQuery) ([]AvailableSlot, error)
	SendOTP(ctx context.Context, auth Auth, req OTPRequest) error
	ValidateOTP(ctx context.Context, auth Auth, req OTPRequest) (bool, error)
	ResolveCustomerID(ctx context.Context, auth Auth, id Identity, sessionID string) (string, error)
	BookAppointment(ctx context.Context, auth Auth, req BookingRequest) (*BookingResponse, error)
	GetPatientAppointment(ctx context.Context, auth Auth, patientID string) (json.RawMessage, error)
}

var _ API = (*Client)(nil)
