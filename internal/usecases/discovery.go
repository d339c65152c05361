package usecases

import (
	"context"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/pylon-apis/pylon/internal/domain/entities"
	"github.com/pylon-apis/pylon/internal/infrastructure/marketplace"
	"github.com/pylon-apis/pylon/pkg/logger"
)

// MarketplaceClient lists x402-payable services for a search term.
type MarketplaceClient interface {
	Search(ctx context.Context, q string, limit int) ([]marketplace.Resource, error)
}

const (
	discoveryCacheTTL = 5 * time.Minute

	// providerCostCeilingMicros rejects marketplace entries above $0.25.
	providerCostCeilingMicros int64 = 250_000

	// Markup floor ($0.005) and rounding step ($0.001) for gateway pricing.
	markupMinFeeMicros    int64 = 5_000
	markupRoundStepMicros int64 = 1_000

	slugMaxLen     = 40
	maxKeywords    = 10
	minKeywordLen  = 4
	searchMaxItems = 20
)

var discoveryStopWords = map[string]struct{}{
	"the": {}, "a": {}, "an": {}, "is": {}, "to": {}, "of": {}, "and": {},
	"for": {}, "in": {}, "on": {}, "at": {}, "by": {}, "with": {}, "from": {},
	"this": {}, "that": {}, "it": {}, "i": {}, "my": {}, "me": {}, "we": {}, "our": {},
}

var (
	urlPattern   = regexp.MustCompile(`https?://[^\s]+`)
	emailPattern = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)
	nonWord      = regexp.MustCompile(`[^a-z0-9]+`)
	nonSlug      = regexp.MustCompile(`[^a-z0-9\-]+`)
)

type discoveryCacheEntry struct {
	caps    []*entities.Capability
	expires time.Time
}

// DiscoveryEngine finds and activates marketplace capabilities when no
// registered capability matches a task.
type DiscoveryEngine struct {
	market MarketplaceClient
	now    func() time.Time

	mu     sync.RWMutex
	cache  map[string]discoveryCacheEntry
	active map[string]*entities.Capability
}

// NewDiscoveryEngine creates a discovery engine.
func NewDiscoveryEngine(market MarketplaceClient) *DiscoveryEngine {
	return &DiscoveryEngine{
		market: market,
		now:    time.Now,
		cache:  make(map[string]discoveryCacheEntry),
		active: make(map[string]*entities.Capability),
	}
}

// SearchTerm derives the marketplace query from a task: URLs, emails and
// stop-words stripped, whitespace collapsed. Empty means nothing to search.
func SearchTerm(task string) string {
	s := urlPattern.ReplaceAllString(task, " ")
	s = emailPattern.ReplaceAllString(s, " ")
	var kept []string
	for _, word := range strings.Fields(s) {
		if _, stop := discoveryStopWords[strings.ToLower(word)]; stop {
			continue
		}
		kept = append(kept, word)
	}
	return strings.Join(kept, " ")
}

// Discover searches the marketplace for candidates matching the task and
// returns them normalized to capability records, best first. Results are
// cached for five minutes keyed by the lowercased search term.
func (d *DiscoveryEngine) Discover(ctx context.Context, task string) ([]*entities.Capability, error) {
	term := SearchTerm(task)
	if term == "" {
		return nil, nil
	}
	key := strings.ToLower(term)

	d.mu.RLock()
	entry, hit := d.cache[key]
	d.mu.RUnlock()
	if hit && d.now().Before(entry.expires) {
		return entry.caps, nil
	}

	resources, err := d.market.Search(ctx, term, searchMaxItems)
	if err != nil {
		return nil, err
	}

	var caps []*entities.Capability
	for i := range resources {
		if c := normalizeResource(&resources[i]); c != nil {
			caps = append(caps, c)
		}
	}

	d.mu.Lock()
	d.cache[key] = discoveryCacheEntry{caps: caps, expires: d.now().Add(discoveryCacheTTL)}
	d.mu.Unlock()

	logger.Debug(ctx, "marketplace search",
		zap.String("term", term), zap.Int("kept", len(caps)))
	return caps, nil
}

// Activate makes a discovered capability reachable by the dispatcher. The
// first activation per ID wins; later calls return the existing record.
func (d *DiscoveryEngine) Activate(c *entities.Capability) *entities.Capability {
	d.mu.Lock()
	defer d.mu.Unlock()
	if existing, ok := d.active[c.ID]; ok {
		return existing
	}
	d.active[c.ID] = c
	return c
}

// ActiveByID looks up an activated discovered capability.
func (d *DiscoveryEngine) ActiveByID(id string) (*entities.Capability, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	c, ok := d.active[id]
	return c, ok
}

// Active returns all activated discovered capabilities.
func (d *DiscoveryEngine) Active() []*entities.Capability {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]*entities.Capability, 0, len(d.active))
	for _, c := range d.active {
		out = append(out, c)
	}
	return out
}

// normalizeResource converts one marketplace entry into a capability-shaped
// record, or nil when the entry is filtered out.
func normalizeResource(res *marketplace.Resource) *entities.Capability {
	if res.Resource == "" || len(res.Accepts) == 0 {
		return nil
	}
	accept := res.Accepts[0]

	providerMicros, err := strconv.ParseInt(accept.MaxAmountRequired, 10, 64)
	if err != nil || providerMicros < 0 || providerMicros > providerCostCeilingMicros {
		return nil
	}

	name := res.Resource
	var description string
	if res.Metadata != nil {
		if res.Metadata.Name != "" {
			name = res.Metadata.Name
		}
		description = res.Metadata.Description
	}
	if description == "" {
		description = accept.Description
	}

	gatewayMicros := MarkupMicros(providerMicros)

	method := "POST"
	inputs := map[string]entities.InputField{}
	if accept.OutputSchema != nil {
		in := accept.OutputSchema.Input
		if in.Method != "" {
			method = strings.ToUpper(in.Method)
		}
		fields := in.BodyFields
		if method == "GET" {
			fields = in.QueryParams
		}
		for fname, f := range fields {
			ftype := f.Type
			if ftype == "" {
				ftype = "string"
			}
			inputs[fname] = entities.InputField{
				Type:        ftype,
				Required:    f.Required,
				Description: f.Description,
			}
		}
	}

	return &entities.Capability{
		ID:                 entities.DiscoveredIDPrefix + Slugify(name),
		Name:               name,
		Description:        description,
		Price:              entities.FormatUSD(gatewayMicros),
		CostMicros:         gatewayMicros,
		ProviderCostMicros: providerMicros,
		Keywords:           keywordsFrom(description),
		Endpoint:           res.Resource,
		Method:             method,
		Inputs:             inputs,
		Output:             entities.OutputJSON,
		Source:             entities.SourceDiscovered,
		PayTo:              accept.PayTo,
		Network:            accept.Network,
	}
}

// MarkupMicros prices a discovered capability for callers:
// max(2p, p + $0.005) rounded up to the nearest $0.001.
func MarkupMicros(providerMicros int64) int64 {
	marked := providerMicros * 2
	if floor := providerMicros + markupMinFeeMicros; floor > marked {
		marked = floor
	}
	return entities.RoundUpToMicros(marked, markupRoundStepMicros)
}

// Slugify lowercases, strips non-alphanumerics to hyphens, and caps length.
func Slugify(name string) string {
	s := strings.ToLower(name)
	s = nonSlug.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-")
	for strings.Contains(s, "--") {
		s = strings.ReplaceAll(s, "--", "-")
	}
	if len(s) > slugMaxLen {
		s = strings.Trim(s[:slugMaxLen], "-")
	}
	return s
}

func keywordsFrom(description string) []string {
	var kws []string
	for _, tok := range nonWord.Split(strings.ToLower(description), -1) {
		if len(tok) < minKeywordLen {
			continue
		}
		kws = append(kws, tok)
		if len(kws) == maxKeywords {
			break
		}
	}
	return kws
}
