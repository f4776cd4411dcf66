// Package audit records every mutation as an event document, giving the
// dashboard an activity history and the notifier something to ship.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"obralink/internal/docstore"
	"obralink/internal/domain"
)

const Collection = "audit_events"

// CreatedAtFormat is fixed width, unlike RFC3339Nano which drops trailing
// zeros, so the lexical order of createdAt strings matches time order and
// keyset cursors over the trail stay stable.
const CreatedAtFormat = "2006-01-02T15:04:05.000000000Z07:00"

type Payload map[string]any

type Writer struct {
	Now func() time.Time
}

// Append writes one event through the given docstore writer, so events land
// in the same batch as the mutation they describe.
func (w Writer) Append(ctx context.Context, dw docstore.Writer, evtType, projectID, entityKind, entityID, actorID string, payload Payload) error {
	if w.Now == nil {
		w.Now = time.Now
	}
	if payload == nil {
		payload = Payload{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	evt := domain.AuditEvent{
		ID:         uuid.New().String(),
		Type:       evtType,
		ProjectID:  projectID,
		EntityKind: entityKind,
		EntityID:   entityID,
		ActorID:    actorID,
		CreatedAt:  w.Now().UTC().Format(CreatedAtFormat),
		Payload:    string(data),
	}
	return dw.Set(ctx, Collection, evt.ID, evt)
}

// After returns events across all projects, oldest first, starting
// strictly after the cursor event when given. Used by the notifier to
// walk the trail forward.
func After(ctx context.Context, s docstore.Store, limit int, startAfterID string) ([]domain.AuditEvent, error) {
	docs, err := s.Query(ctx, Collection, docstore.Query{
		OrderBy:      "createdAt",
		Limit:        limit,
		StartAfterID: startAfterID,
	})
	if err != nil {
		return nil, err
	}
	res := make([]domain.AuditEvent, 0, len(docs))
	for _, d := range docs {
		var evt domain.AuditEvent
		if err := json.Unmarshal(d.Data, &evt); err != nil {
			return nil, err
		}
		res = append(res, evt)
	}
	return res, nil
}

// LatestID returns the id of the newest event, or empty when the trail is
// empty.
func LatestID(ctx context.Context, s docstore.Store) (string, error) {
	docs, err := s.Query(ctx, Collection, docstore.Query{
		OrderBy:    "createdAt",
		Descending: true,
		Limit:      1,
	})
	if err != nil {
		return "", err
	}
	if len(docs) == 0 {
		return "", nil
	}
	return docs[0].ID, nil
}

// Recent returns events for a project, newest first, starting strictly
// after the cursor event when given.
func Recent(ctx context.Context, s docstore.Store, projectID string, limit int, startAfterID string) ([]domain.AuditEvent, error) {
	q := docstore.Query{
		OrderBy:      "createdAt",
		Descending:   true,
		Limit:        limit,
		StartAfterID: startAfterID,
	}
	if projectID != "" {
		q.Filters = []docstore.Filter{{Field: "projectId", Value: projectID}}
	}
	docs, err := s.Query(ctx, Collection, q)
	if err != nil {
		return nil, err
	}
	res := make([]domain.AuditEvent, 0, len(docs))
	for _, d := range docs {
		var evt domain.AuditEvent
		if err := json.Unmarshal(d.Data, &evt); err != nil {
			return nil, err
		}
		res = append(res, evt)
	}
	return res, nil
}
