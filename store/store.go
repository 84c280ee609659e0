package store

import (
	"context"

	"registration-system/models"
)

// RegistrationStore is the durable record of registrations and settings.
// The embedded PocketBase store and the remote sheet proxy both implement
// it; everything above this interface is backend-agnostic.
//
// Settings values cross this boundary in their encoded string form
// (models.EncodeSettingValue / DecodeSettingValue).
type RegistrationStore interface {
	Create(ctx context.Context, studentName, phoneNumber, programme, category string) (*models.Registration, error)

	// List returns registrations newest-first, optionally filtered by category.
	List(ctx context.Context, category string) ([]models.Registration, error)

	// UpdateStatus sets the status and stamps timeIn the first time the
	// record enters an in-progress status. Re-entering does not re-stamp.
	UpdateStatus(ctx context.Context, id, newStatus string) (*models.Registration, error)

	UpdateRemark(ctx context.Context, id, remark string) (*models.Registration, error)

	Delete(ctx context.Context, id string) error

	// ClearAll removes every registration, or only those in the given
	// category when one is supplied.
	ClearAll(ctx context.Context, category string) error

	GetSetting(ctx context.Context, key string) (string, error)
	SetSetting(ctx context.Context, key, value string) error
	GetAllSettings(ctx context.Context) (map[string]string, error)
}
