// Package dedup removes local papers that share an external identifier.
package dedup

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/dmitrijs2005/papershelf/internal/api"
	"github.com/dmitrijs2005/papershelf/internal/client/models"
	"github.com/dmitrijs2005/papershelf/internal/client/repositories/records"
	"github.com/dmitrijs2005/papershelf/internal/logging"
	"github.com/spf13/cast"
)

type Engine struct {
	store records.Repository
	log   logging.Logger
}

func New(store records.Repository, log logging.Logger) *Engine {
	return &Engine{store: store, log: log.With("module", "dedup")}
}

// DeduplicateLocalPapers groups papers by IdentityKey and keeps the member
// with the highest local id in every group. The result counts attempted
// deletions; a failed delete is logged and the pass goes on.
//
// Deletions are local only and are not tracked for sync.
func (d *Engine) DeduplicateLocalPapers(ctx context.Context) (int, error) {
	papers, err := d.store.GetAll(ctx, api.Papers)
	if err != nil {
		return 0, fmt.Errorf("load papers: %w", err)
	}

	groups := make(map[string][]int64)
	for _, p := range papers {
		key := IdentityKey(p)
		if key == "" {
			continue
		}
		id, ok := api.RecordID(p)
		if !ok {
			continue
		}
		groups[key] = append(groups[key], id)
	}

	keys := make([]string, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	removed := 0
	for _, key := range keys {
		ids := groups[key]
		if len(ids) < 2 {
			continue
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] > ids[j] })
		for _, id := range ids[1:] {
			removed++
			if err := d.store.Delete(ctx, api.Papers, id); err != nil {
				d.log.Warn(ctx, "duplicate delete failed", "key", key, "id", id, "error", err)
				continue
			}
			d.log.Debug(ctx, "duplicate removed", "key", key, "id", id, "kept", ids[0])
		}
	}

	if removed > 0 {
		d.log.Info(ctx, "dedup pass finished", "removed", removed)
	}
	return removed, nil
}

var (
	arxivInDOI   = regexp.MustCompile(`(?i)arxiv[:.]\s*([a-z\-]+(?:\.[a-z]{2})?/\d{7}|\d{4}\.\d{4,5})`)
	arxivVersion = regexp.MustCompile(`v\d+$`)
)

// IdentityKey returns the normalized external identity of a paper, or "" if
// it has none. A DOI that embeds an arXiv id, such as 10.48550/arXiv.2101.00001
// or "arXiv:2101.00001", yields the same key as the bare arXiv id.
func IdentityKey(rec api.Record) string {
	doi := strings.TrimSpace(cast.ToString(rec[models.FieldDOI]))
	if doi != "" {
		if m := arxivInDOI.FindStringSubmatch(doi); m != nil {
			return "arxiv:" + strings.ToLower(m[1])
		}
		return "doi:" + strings.ToLower(doi)
	}
	if id := NormalizeArxivID(cast.ToString(rec[models.FieldArxivID])); id != "" {
		return "arxiv:" + id
	}
	return ""
}

// NormalizeArxivID lower-cases an arXiv id and strips the "arXiv:" prefix,
// an abs/pdf URL and the version suffix.
func NormalizeArxivID(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return ""
	}
	for _, p := range []string{"https://arxiv.org/abs/", "http://arxiv.org/abs/", "https://arxiv.org/pdf/", "http://arxiv.org/pdf/", "arxiv:"} {
		s = strings.TrimPrefix(s, p)
	}
	s = strings.TrimSuffix(s, ".pdf")
	s = arxivVersion.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}
