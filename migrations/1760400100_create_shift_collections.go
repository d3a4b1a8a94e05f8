package migrations

import (
	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/tools/types"
)

const (
	ownRecordRule   = "@request.auth.id != '' && user_id = @request.auth.id"
	ownCreateRule   = "@request.auth.id != '' && @request.body.user_id = @request.auth.id"
	ownUpdateRule   = ownRecordRule + " && (@request.body.user_id:isset = false || @request.body.user_id = @request.auth.id)"
	workDatePattern = `^\d{4}-\d{2}-\d{2}$`
)

func init() {
	core.AppMigrations.Register(func(app core.App) error {
		users, err := app.FindCollectionByNameOrId("users")
		if err != nil {
			return err
		}
		if err := app.Save(shiftRecordsCollection(users.Id)); err != nil {
			return err
		}
		return app.Save(shiftEventsCollection(users.Id))
	}, func(app core.App) error {
		for _, name := range []string{"shift_events", "shift_records"} {
			collection, err := app.FindCollectionByNameOrId(name)
			if err != nil {
				return err
			}
			if err := app.Delete(collection); err != nil {
				return err
			}
		}
		return nil
	})
}

func shiftRecordsCollection(usersID string) *core.Collection {
	shifts := core.NewBaseCollection("shift_records", "shift_records01")
	shifts.ListRule = types.Pointer(ownRecordRule)
	shifts.ViewRule = types.Pointer(ownRecordRule)
	shifts.CreateRule = types.Pointer(ownCreateRule)
	shifts.UpdateRule = types.Pointer(ownUpdateRule)
	// void transitions are done by admins only
	shifts.DeleteRule = nil

	shifts.Fields.Add(
		// a user with attendance history cannot be deleted
		&core.RelationField{
			Name:         "user_id",
			CollectionId: usersID,
			MaxSelect:    1,
			Required:     true,
		},
		&core.TextField{Name: "work_date", Required: true, Pattern: workDatePattern},
		&core.SelectField{
			Name:      "status",
			Values:    []string{"open", "closed", "void"},
			MaxSelect: 1,
			Required:  true,
		},
		&core.DateField{Name: "clock_in_at"},
		&core.NumberField{Name: "clock_in_lat"},
		&core.NumberField{Name: "clock_in_lng"},
		&core.NumberField{Name: "clock_in_accuracy_m", Min: types.Pointer(0.0)},
		&core.TextField{Name: "clock_in_source", Max: 32},
		&core.DateField{Name: "clock_out_at"},
		&core.NumberField{Name: "clock_out_lat"},
		&core.NumberField{Name: "clock_out_lng"},
		&core.NumberField{Name: "clock_out_accuracy_m", Min: types.Pointer(0.0)},
		&core.TextField{Name: "clock_out_source", Max: 32},
		&core.AutodateField{Name: "created", OnCreate: true},
		&core.AutodateField{Name: "updated", OnCreate: true, OnUpdate: true},
	)
	// one record per user and work date
	shifts.AddIndex("idx_shift_records_user_work_date", true, "user_id, work_date", "")
	return shifts
}

func shiftEventsCollection(usersID string) *core.Collection {
	events := core.NewBaseCollection("shift_events", "shift_events001")
	events.ListRule = types.Pointer(ownRecordRule)
	events.ViewRule = types.Pointer(ownRecordRule)
	events.CreateRule = types.Pointer(ownCreateRule)
	// append-only
	events.UpdateRule = nil
	events.DeleteRule = nil

	events.Fields.Add(
		// plain id so the log outlives its shift record
		&core.TextField{Name: "shift_id", Max: 32},
		&core.RelationField{
			Name:         "user_id",
			CollectionId: usersID,
			MaxSelect:    1,
			Required:     true,
		},
		&core.SelectField{
			Name:      "event_type",
			Values:    []string{"clock_in", "clock_out"},
			MaxSelect: 1,
			Required:  true,
		},
		&core.DateField{Name: "occurred_at", Required: true},
		&core.NumberField{Name: "lat"},
		&core.NumberField{Name: "lng"},
		&core.NumberField{Name: "accuracy_m", Min: types.Pointer(0.0)},
		&core.TextField{Name: "source", Max: 32},
		&core.JSONField{Name: "payload", MaxSize: 1 << 16},
		&core.AutodateField{Name: "created", OnCreate: true},
	)
	events.AddIndex("idx_shift_events_user_occurred", false, "user_id, occurred_at", "")
	return events
}
