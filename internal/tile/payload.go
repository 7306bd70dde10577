package tile

import (
	"encoding/json"
	"fmt"

	"github.com/starford/tessera/internal/apperr"
)

// Payload carries the display fields one tile kind needs to render.
type Payload interface {
	Kind() Kind
}

// NotePayload belongs to a project note tile.
type NotePayload struct {
	Title     string `json:"title"`
	ProjectID string `json:"project_id"`
}

func (NotePayload) Kind() Kind { return KindNote }

// JournalPayload belongs to a journal entry tile; Date is YYYY-MM-DD.
type JournalPayload struct {
	Date string `json:"date"`
	Mood string `json:"mood,omitempty"`
}

func (JournalPayload) Kind() Kind { return KindJournal }

// QuickNotePayload belongs to an inbox capture tile.
type QuickNotePayload struct {
	Content string `json:"content"`
	Source  string `json:"source,omitempty"`
}

func (QuickNotePayload) Kind() Kind { return KindQuickNote }

// DecodePayload decodes raw into the payload variant for kind.
// Empty input yields a nil payload.
func DecodePayload(kind Kind, raw json.RawMessage) (Payload, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	switch kind {
	case KindNote:
		var p NotePayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("tile: decode note payload: %w", err)
		}
		return p, nil
	case KindJournal:
		var p JournalPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("tile: decode journal payload: %w", err)
		}
		return p, nil
	case KindQuickNote:
		var p QuickNotePayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("tile: decode quick-note payload: %w", err)
		}
		return p, nil
	}
	return nil, fmt.Errorf("%w: %q", apperr.ErrInvalidKind, kind)
}
