package enrich

import (
	"context"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/devraulu/airank/pkg/analyzer"
	"github.com/devraulu/airank/pkg/process"
)

const (
	MetaLinks        = "internal_link_suggestions"
	MetaLinksLastRun = "internal_links_last_run"
	MetaLinksError   = "internal_links_error"

	maxLinkTerms       = 6
	linkLookupLimit    = 6
	maxLinkSuggestions = 8
	minKeywordLength   = 5
)

type LinkSuggestion struct {
	TargetID int64  `json:"target_id"`
	URL      string `json:"url"`
	Title    string `json:"title"`
	Anchor   string `json:"anchor"`
	Reason   string `json:"reason"`
}

// InternalLinks suggests other published items the item could link to:
// first by shared entities, then by title keywords.
func (s *Service) InternalLinks(ctx context.Context, ev analyzer.Event) error {
	suggestions, err := s.SuggestLinks(ctx, ev.ItemID)
	if err == nil {
		err = s.store.SetMeta(ctx, ev.ItemID, MetaLinks, suggestions)
	}
	return s.record(ctx, ev.ItemID, MetaLinksLastRun, MetaLinksError, err)
}

func (s *Service) SuggestLinks(ctx context.Context, id int64) ([]LinkSuggestion, error) {
	item, err := s.item(ctx, id)
	if err != nil {
		return nil, err
	}

	linked, err := s.alreadyLinked(ctx, item.Body, item.URL)
	if err != nil {
		return nil, err
	}
	linked[id] = true

	var candidates []LinkSuggestion

	entities, err := s.store.EntitiesForItem(ctx, id)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entities {
		if n := strings.TrimSpace(e.Name); n != "" {
			names = append(names, n)
		}
		if len(names) == maxLinkTerms {
			break
		}
	}
	if len(names) > 0 {
		found, err := s.suggestByTitle(ctx, id, names, "Shares key entities: "+strings.Join(names[:min(3, len(names))], ", "))
		if err != nil {
			return nil, err
		}
		candidates = append(candidates, found...)
	}

	if len(candidates) < 4 {
		if words := titleKeywords(item.Title); len(words) > 0 {
			found, err := s.suggestByTitle(ctx, id, words, "Similar topic keywords")
			if err != nil {
				return nil, err
			}
			candidates = append(candidates, found...)
		}
	}

	out := []LinkSuggestion{}
	seen := map[int64]bool{}
	for _, c := range candidates {
		if seen[c.TargetID] || linked[c.TargetID] {
			continue
		}
		seen[c.TargetID] = true
		out = append(out, c)
		if len(out) == maxLinkSuggestions {
			break
		}
	}
	return out, nil
}

func (s *Service) suggestByTitle(ctx context.Context, id int64, terms []string, reason string) ([]LinkSuggestion, error) {
	items, err := s.store.FindByTitle(ctx, terms, s.cfg.Types, id, linkLookupLimit)
	if err != nil {
		return nil, err
	}
	out := make([]LinkSuggestion, 0, len(items))
	for _, it := range items {
		out = append(out, LinkSuggestion{
			TargetID: it.ID,
			URL:      it.URL,
			Title:    it.Title,
			Anchor:   it.Title,
			Reason:   reason,
		})
	}
	return out, nil
}

// alreadyLinked maps the ids of items the content already links to.
func (s *Service) alreadyLinked(ctx context.Context, content, itemURL string) (map[int64]bool, error) {
	linked := map[int64]bool{}
	if strings.TrimSpace(content) == "" {
		return linked, nil
	}

	base := itemURL
	if base == "" {
		base = s.cfg.SiteURL
	}
	links, err := process.ContentLinks(content, base)
	if err != nil {
		return nil, err
	}

	for _, l := range links {
		normalized, err := process.Normalize(l)
		if err != nil {
			slog.Debug("skipping unparsable link", slog.String("url", l), slog.Any("err", err))
			continue
		}
		id, ok, err := s.store.ItemIDByURL(ctx, normalized)
		if err != nil {
			return nil, err
		}
		if ok {
			linked[id] = true
		}
	}
	return linked, nil
}

// titleKeywords returns up to six distinct lowercased title words of at
// least five characters.
func titleKeywords(title string) []string {
	var words []string
	seen := map[string]bool{}
	for _, w := range strings.Fields(strings.ToLower(process.StripTags(title))) {
		if utf8.RuneCountInString(w) < minKeywordLength || seen[w] {
			continue
		}
		seen[w] = true
		words = append(words, w)
		if len(words) == maxLinkTerms {
			break
		}
	}
	return words
}
