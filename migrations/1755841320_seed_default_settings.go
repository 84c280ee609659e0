package migrations

import (
	"github.com/pocketbase/pocketbase/core"
	m "github.com/pocketbase/pocketbase/migrations"

	"registration-system/models"
)

// Seeds the settings collection so a fresh install has a usable event
// name, capacity, programme list and status vocabulary before anyone
// touches the settings panel.
func init() {
	m.Register(func(app core.App) error {
		collection, err := app.FindCollectionByNameOrId("settings")
		if err != nil {
			return err
		}

		defaults := map[string]any{
			models.KeyEventName:   models.DefaultEventName,
			models.KeyMaxCapacity: models.DefaultMaxCapacity,
			models.KeyProgrammes:  models.DefaultProgrammes,
			models.KeyStatuses:    models.DefaultStatuses,
		}

		for key, value := range defaults {
			encoded, err := models.EncodeSettingValue(key, value)
			if err != nil {
				return err
			}

			record := core.NewRecord(collection)
			record.Set("key", key)
			record.Set("value", encoded)
			if err := app.Save(record); err != nil {
				return err
			}
		}

		return nil
	}, func(app core.App) error {
		records, err := app.FindAllRecords("settings")
		if err != nil {
			return err
		}
		for _, record := range records {
			if err := app.Delete(record); err != nil {
				return err
			}
		}
		return nil
	})
}
