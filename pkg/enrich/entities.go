package enrich

import (
	"context"
	"slices"

	"github.com/devraulu/airank/pkg/ai"
	"github.com/devraulu/airank/pkg/analyzer"
	"github.com/devraulu/airank/pkg/storage"
)

const (
	MetaEntitiesLastRun = "entities_last_run"
	MetaEntitiesError   = "entities_error"

	maxEntities = 20
)

var (
	entityTypes = []string{"person", "organization", "product", "brand", "place", "topic", "event", "technology", "keyword", "other"}
	entityRoles = []string{"main", "supporting", "mentioned"}
)

const entitiesInstructions = `Extract the named entities of the page below.
Reply with a JSON object only:
{"entities":[{"name":"...","type":"...","role":"...","confidence":90}]}
- "type" is one of: person, organization, product, brand, place, topic, event, technology, keyword, other.
- "role" is one of: main, supporting, mentioned.
- "confidence" is an integer from 0 to 100.`

type rawEntity struct {
	Name       string `json:"name"`
	Type       string `json:"type"`
	Role       string `json:"role"`
	Confidence *int   `json:"confidence"`
}

// Entities asks the model for the entities of a published item and replaces
// the item's links in the entity graph. It runs on every analysis so internal
// link suggestions always have an entity set to work from.
func (s *Service) Entities(ctx context.Context, ev analyzer.Event) error {
	item, err := s.item(ctx, ev.ItemID)
	if err != nil {
		return s.record(ctx, ev.ItemID, MetaEntitiesLastRun, MetaEntitiesError, err)
	}
	if item.Status != storage.StatusPublish {
		return nil
	}
	err = s.entities(ctx, item)
	return s.record(ctx, ev.ItemID, MetaEntitiesLastRun, MetaEntitiesError, err)
}

func (s *Service) entities(ctx context.Context, item *storage.Item) error {
	resp, err := s.ai.Complete(ctx, s.prompt(ai.TaskEntities, item, entitiesInstructions), s.cfg.Mode.Options())
	if err != nil {
		return err
	}

	var out struct {
		Entities []rawEntity `json:"entities"`
	}
	if err := ai.DecodeJSON(resp, &out); err != nil {
		return err
	}

	return s.store.ReplaceItemEntities(ctx, item.ID, s.normalizeEntities(out.Entities))
}

func (s *Service) normalizeEntities(raw []rawEntity) []storage.Entity {
	var entities []storage.Entity
	for _, r := range raw {
		name := s.plain(r.Name)
		if name == "" {
			continue
		}
		e := storage.Entity{Name: name, Type: r.Type, Role: r.Role, Confidence: 80}
		if !slices.Contains(entityTypes, e.Type) {
			e.Type = "other"
		}
		if !slices.Contains(entityRoles, e.Role) {
			e.Role = "mentioned"
		}
		if r.Confidence != nil {
			e.Confidence = min(max(*r.Confidence, 0), 100)
		}
		entities = append(entities, e)
		if len(entities) == maxEntities {
			break
		}
	}
	return entities
}
