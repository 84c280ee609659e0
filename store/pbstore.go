package store

import (
	"context"
	"fmt"
	"time"

	"github.com/pocketbase/dbx"
	"github.com/pocketbase/pocketbase/core"

	"registration-system/internal/status"
	"registration-system/models"
)

const (
	registrationsCollection = "registrations"
	settingsCollection      = "settings"
)

// PBStore persists registrations and settings in the embedded PocketBase
// database. It is the default backend.
type PBStore struct {
	app core.App
}

func NewPBStore(app core.App) *PBStore {
	return &PBStore{app: app}
}

func (s *PBStore) Create(ctx context.Context, studentName, phoneNumber, programme, category string) (*models.Registration, error) {
	collection, err := s.app.FindCollectionByNameOrId(registrationsCollection)
	if err != nil {
		return nil, fmt.Errorf("%w: find collection: %v", status.ErrStore, err)
	}

	record := core.NewRecord(collection)
	record.Set("student_name", studentName)
	record.Set("phone_number", phoneNumber)
	record.Set("programme", programme)
	record.Set("category", category)
	record.Set("status", models.DefaultStatus)
	record.Set("remark", "")

	if err := s.app.Save(record); err != nil {
		return nil, fmt.Errorf("%w: create registration: %v", status.ErrStore, err)
	}

	return recordToRegistration(record), nil
}

func (s *PBStore) List(ctx context.Context, category string) ([]models.Registration, error) {
	filter := "id != ''"
	params := dbx.Params{}
	if category != "" {
		filter = "category = {:category}"
		params["category"] = category
	}

	records, err := s.app.FindRecordsByFilter(registrationsCollection, filter, "-created", 0, 0, params)
	if err != nil {
		return nil, fmt.Errorf("%w: list registrations: %v", status.ErrStore, err)
	}

	out := make([]models.Registration, 0, len(records))
	for _, r := range records {
		out = append(out, *recordToRegistration(r))
	}
	return out, nil
}

func (s *PBStore) UpdateStatus(ctx context.Context, id, newStatus string) (*models.Registration, error) {
	record, err := s.app.FindRecordById(registrationsCollection, id)
	if err != nil {
		return nil, fmt.Errorf("%w: registration %s", status.ErrNotFound, id)
	}

	record.Set("status", newStatus)
	// First entry into an in-progress status stamps time_in; it stays
	// fixed on re-entry.
	if models.IsTimeInStatus(newStatus) && record.GetDateTime("time_in").IsZero() {
		record.Set("time_in", time.Now().UTC())
	}

	if err := s.app.Save(record); err != nil {
		return nil, fmt.Errorf("%w: update status: %v", status.ErrStore, err)
	}
	return recordToRegistration(record), nil
}

func (s *PBStore) UpdateRemark(ctx context.Context, id, remark string) (*models.Registration, error) {
	record, err := s.app.FindRecordById(registrationsCollection, id)
	if err != nil {
		return nil, fmt.Errorf("%w: registration %s", status.ErrNotFound, id)
	}

	record.Set("remark", remark)
	if err := s.app.Save(record); err != nil {
		return nil, fmt.Errorf("%w: update remark: %v", status.ErrStore, err)
	}
	return recordToRegistration(record), nil
}

func (s *PBStore) Delete(ctx context.Context, id string) error {
	record, err := s.app.FindRecordById(registrationsCollection, id)
	if err != nil {
		return fmt.Errorf("%w: registration %s", status.ErrNotFound, id)
	}
	if err := s.app.Delete(record); err != nil {
		return fmt.Errorf("%w: delete registration: %v", status.ErrStore, err)
	}
	return nil
}

func (s *PBStore) ClearAll(ctx context.Context, category string) error {
	query := s.app.DB().NewQuery("DELETE FROM registrations")
	if category != "" {
		query = s.app.DB().NewQuery("DELETE FROM registrations WHERE category = {:category}").
			Bind(dbx.Params{"category": category})
	}
	if _, err := query.Execute(); err != nil {
		return fmt.Errorf("%w: clear registrations: %v", status.ErrStore, err)
	}
	return nil
}

func (s *PBStore) GetSetting(ctx context.Context, key string) (string, error) {
	record, err := s.app.FindFirstRecordByData(settingsCollection, "key", key)
	if err != nil {
		return "", fmt.Errorf("%w: setting %s", status.ErrNotFound, key)
	}
	return record.GetString("value"), nil
}

func (s *PBStore) SetSetting(ctx context.Context, key, value string) error {
	record, err := s.app.FindFirstRecordByData(settingsCollection, "key", key)
	if err != nil {
		collection, cerr := s.app.FindCollectionByNameOrId(settingsCollection)
		if cerr != nil {
			return fmt.Errorf("%w: find collection: %v", status.ErrStore, cerr)
		}
		record = core.NewRecord(collection)
		record.Set("key", key)
	}

	record.Set("value", value)
	if err := s.app.Save(record); err != nil {
		return fmt.Errorf("%w: save setting %s: %v", status.ErrStore, key, err)
	}
	return nil
}

func (s *PBStore) GetAllSettings(ctx context.Context) (map[string]string, error) {
	records, err := s.app.FindAllRecords(settingsCollection)
	if err != nil {
		return nil, fmt.Errorf("%w: list settings: %v", status.ErrStore, err)
	}

	out := make(map[string]string, len(records))
	for _, r := range records {
		out[r.GetString("key")] = r.GetString("value")
	}
	return out, nil
}

func recordToRegistration(r *core.Record) *models.Registration {
	reg := &models.Registration{
		ID:          r.Id,
		StudentName: r.GetString("student_name"),
		PhoneNumber: r.GetString("phone_number"),
		Programme:   r.GetString("programme"),
		Category:    r.GetString("category"),
		Status:      r.GetString("status"),
		Remark:      r.GetString("remark"),
		Timestamp:   r.GetDateTime("created").Time(),
		UpdatedAt:   r.GetDateTime("updated").Time(),
	}
	if timeIn := r.GetDateTime("time_in"); !timeIn.IsZero() {
		t := timeIn.Time()
		reg.TimeIn = &t
	}
	return reg
}
