package models

// ModelsToAutoMigrate returns the models in dependency order.
func ModelsToAutoMigrate() []any {
	return []any{
		&Category{}, // Must be first - other tables reference it
		&Document{},
		&Revision{},
		&Metadata{},
		&Review{},
		&Transmittal{},
		&TransmittalRevision{},
		&Export{},
		&EventOutbox{},
	}
}
