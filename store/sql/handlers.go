package sqlstore

import (
	"strings"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
)

func ingestionRecordHandlers() repository.ModelHandlers[*ingestionRecordRow] {
	return repository.ModelHandlers[*ingestionRecordRow]{
		NewRecord: func() *ingestionRecordRow {
			return &ingestionRecordRow{}
		},
		GetID: func(record *ingestionRecordRow) uuid.UUID {
			if record == nil {
				return uuid.Nil
			}
			return parseUUID(record.ID)
		},
		SetID: func(record *ingestionRecordRow, id uuid.UUID) {
			if record == nil {
				return
			}
			record.ID = id.String()
		},
		GetIdentifier: func() string {
			return "id"
		},
		GetIdentifierValue: func(record *ingestionRecordRow) string {
			if record == nil {
				return ""
			}
			return strings.TrimSpace(record.ID)
		},
	}
}

func signalOutboxHandlers() repository.ModelHandlers[*signalOutboxRow] {
	return repository.ModelHandlers[*signalOutboxRow]{
		NewRecord: func() *signalOutboxRow {
			return &signalOutboxRow{}
		},
		GetID: func(record *signalOutboxRow) uuid.UUID {
			if record == nil {
				return uuid.Nil
			}
			return parseUUID(record.ID)
		},
		SetID: func(record *signalOutboxRow, id uuid.UUID) {
			if record == nil {
				return
			}
			record.ID = id.String()
		},
		GetIdentifier: func() string {
			return "id"
		},
		GetIdentifierValue: func(record *signalOutboxRow) string {
			if record == nil {
				return ""
			}
			return strings.TrimSpace(record.ID)
		},
	}
}

func parseUUID(value string) uuid.UUID {
	parsed, err := uuid.Parse(strings.TrimSpace(value))
	if err != nil {
		return uuid.Nil
	}
	return parsed
}
