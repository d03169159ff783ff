package identity

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/google/uuid"
)

// entityNamespace seeds the SHA1 UUIDs for canonical ids. Fixed so the same
// logical entity maps to the same id across processes and runs.
var entityNamespace = uuid.MustParse("7d44b4da-39f0-4f8e-9a0b-3c61c0f6a2e5")

// Platform identifies the storefront or data source a native id belongs to.
type Platform string

// Platforms seen in the tracked sources. The type is open: any non-empty
// value is accepted.
const (
	PlatformIOS     Platform = "ios"
	PlatformAndroid Platform = "android"
	PlatformSteam   Platform = "steam"
)

// Metadata carries the source-supplied descriptive fields used during
// resolution.
type Metadata struct {
	UnifiedID   string `json:"unified_id,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
	Category    string `json:"category,omitempty"`
	Publisher   string `json:"publisher,omitempty"`
}

// Entity is one logical product unified across all platform listings.
type Entity struct {
	CanonicalID string              `json:"canonical_id"`
	DisplayName string              `json:"display_name"`
	PlatformIDs map[Platform]string `json:"platform_ids"`
	Category    string              `json:"category"`
	Publisher   string              `json:"publisher"`
	UnifiedID   string              `json:"unified_id,omitempty"`
}

// IsValid checks if the entity carries the minimum identifying state.
func (e Entity) IsValid() bool {
	return e.CanonicalID != "" && (e.UnifiedID != "" || e.DisplayName != "")
}

// Conflict records a resolution where inputs sharing a display name carried
// contradictory metadata. The entities stay separate; the conflict is a
// diagnostic for review, never a hard failure.
type Conflict struct {
	Name       string   `json:"name"` // normalized display name both sides share
	ExistingID string   `json:"existing_id"`
	Field      string   `json:"field"` // metadata field that disagreed
	Existing   string   `json:"existing"`
	Incoming   string   `json:"incoming"`
	Platform   Platform `json:"platform"`
	NativeID   string   `json:"native_id"`
}

// Options configures resolution behavior.
type Options struct {
	// MatchPublisher widens the fallback key from (name, category) to
	// (name, category, publisher). Narrows homonym merges at the cost of
	// splitting entities whose listings disagree on publisher spelling.
	MatchPublisher bool
}

type nativeKey struct {
	platform Platform
	nativeID string
}

type nameKey struct {
	name      string
	category  string
	publisher string
}

// Resolver assigns canonical ids to platform listings. Not safe for
// concurrent use: resolution is a synchronous, in-memory pass by contract.
type Resolver struct {
	opts   Options
	logger *slog.Logger

	entities  map[string]*Entity  // canonical id -> entity
	byNative  map[nativeKey]string
	byUnified map[string]string
	byName    map[nameKey]string
	namesSeen map[string][]string // normalized name -> canonical ids carrying it
	aliases   map[string]string   // retired canonical id -> current id
	conflicts []Conflict
}

// NewResolver creates a resolver. A nil logger falls back to slog.Default().
func NewResolver(opts Options, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		opts:      opts,
		logger:    logger,
		entities:  make(map[string]*Entity),
		byNative:  make(map[nativeKey]string),
		byUnified: make(map[string]string),
		byName:    make(map[nameKey]string),
		namesSeen: make(map[string][]string),
		aliases:   make(map[string]string),
	}
}

// Resolve maps one platform listing to its canonical id, creating a new
// entity when nothing matches. Re-resolving the same (platform, native id)
// always returns the same id.
func (r *Resolver) Resolve(nativeID string, platform Platform, meta Metadata) (string, error) {
	if nativeID == "" {
		return "", fmt.Errorf("resolve: native id is required")
	}
	if platform == "" {
		return "", fmt.Errorf("resolve: platform is required")
	}
	if meta.UnifiedID == "" && meta.DisplayName == "" {
		return "", fmt.Errorf("resolve: metadata needs a unified id or a display name (platform=%s native_id=%s)", platform, nativeID)
	}

	nk := nativeKey{platform: platform, nativeID: nativeID}
	if id, ok := r.byNative[nk]; ok {
		id = r.Canonical(id)
		r.attach(id, nk, meta)
		return r.Canonical(id), nil
	}

	id := r.match(nk, meta)
	if id == "" {
		id = r.create(meta)
	}
	r.byNative[nk] = id
	r.attach(id, nk, meta)
	return r.Canonical(id), nil
}

// match finds an existing entity for the listing, or "" when a new one is
// needed. Unified id wins over the name fallback.
func (r *Resolver) match(nk nativeKey, meta Metadata) string {
	if meta.UnifiedID != "" {
		if id, ok := r.byUnified[meta.UnifiedID]; ok {
			return r.Canonical(id)
		}
		// A name-matched entity without its own unified id adopts this one;
		// an entity already bound to a different unified id stays separate.
		if key, ok := r.fallbackKey(meta); ok {
			if id, found := r.byName[key]; found {
				id = r.Canonical(id)
				if r.entities[id].UnifiedID == "" {
					return id
				}
				r.recordConflict(Conflict{
					Name:       key.name,
					ExistingID: id,
					Field:      "unified_id",
					Existing:   r.entities[id].UnifiedID,
					Incoming:   meta.UnifiedID,
					Platform:   nk.platform,
					NativeID:   nk.nativeID,
				})
			}
		}
		return ""
	}

	key, ok := r.fallbackKey(meta)
	if !ok {
		return ""
	}
	if id, found := r.byName[key]; found {
		return r.Canonical(id)
	}
	// Same normalized name under a different category (or publisher) is a
	// homonym: keep separate and surface the disagreement.
	for _, otherID := range r.namesSeen[key.name] {
		otherID = r.Canonical(otherID)
		other := r.entities[otherID]
		field, existing, incoming := "category", other.Category, meta.Category
		if normalizeField(other.Category) == normalizeField(meta.Category) {
			field, existing, incoming = "publisher", other.Publisher, meta.Publisher
		}
		r.recordConflict(Conflict{
			Name:       key.name,
			ExistingID: otherID,
			Field:      field,
			Existing:   existing,
			Incoming:   incoming,
			Platform:   nk.platform,
			NativeID:   nk.nativeID,
		})
	}
	return ""
}

// create registers a new entity keyed by content so ids stay stable across
// input orderings.
func (r *Resolver) create(meta Metadata) string {
	var id string
	if meta.UnifiedID != "" {
		id = canonicalFromUnified(meta.UnifiedID)
		r.byUnified[meta.UnifiedID] = id
	} else {
		key, _ := r.fallbackKey(meta)
		id = canonicalFromName(key)
	}

	e := &Entity{
		CanonicalID: id,
		DisplayName: meta.DisplayName,
		PlatformIDs: make(map[Platform]string),
		Category:    meta.Category,
		Publisher:   meta.Publisher,
		UnifiedID:   meta.UnifiedID,
	}
	r.entities[id] = e
	r.indexName(id, meta)
	return id
}

// attach folds listing metadata into an existing entity, upgrading a
// name-keyed entity to its unified id when one arrives later.
func (r *Resolver) attach(id string, nk nativeKey, meta Metadata) {
	e := r.entities[id]
	if existing, ok := e.PlatformIDs[nk.platform]; ok && existing != nk.nativeID {
		r.logger.Warn("platform already bound to a different native id",
			slog.String("canonical_id", id),
			slog.String("platform", string(nk.platform)),
			slog.String("bound_native_id", existing),
			slog.String("incoming_native_id", nk.nativeID))
	} else {
		e.PlatformIDs[nk.platform] = nk.nativeID
	}

	if e.DisplayName == "" && meta.DisplayName != "" {
		e.DisplayName = meta.DisplayName
		r.indexName(id, meta)
	}
	if e.Category == "" {
		e.Category = meta.Category
	}
	if e.Publisher == "" {
		e.Publisher = meta.Publisher
	}

	switch {
	case meta.UnifiedID == "" || e.UnifiedID == meta.UnifiedID:
		// nothing to reconcile
	case e.UnifiedID == "":
		r.adoptUnifiedID(id, meta.UnifiedID)
	default:
		r.recordConflict(Conflict{
			Name:       NormalizeName(e.DisplayName),
			ExistingID: id,
			Field:      "unified_id",
			Existing:   e.UnifiedID,
			Incoming:   meta.UnifiedID,
			Platform:   nk.platform,
			NativeID:   nk.nativeID,
		})
	}
}

// adoptUnifiedID re-keys a name-derived entity under its unified id. The old
// id stays resolvable through the alias table so earlier callers are not
// stranded, and the final grouping matches what unified-id-first ordering
// would have produced. When another entity already owns the unified id the
// two are the same logical product and get merged.
func (r *Resolver) adoptUnifiedID(oldID, unifiedID string) {
	newID := canonicalFromUnified(unifiedID)
	if newID == oldID {
		return
	}

	e := r.entities[oldID]
	if owner, ok := r.entities[newID]; ok {
		for platform, nativeID := range e.PlatformIDs {
			if _, taken := owner.PlatformIDs[platform]; !taken {
				owner.PlatformIDs[platform] = nativeID
			}
		}
		if owner.DisplayName == "" {
			owner.DisplayName = e.DisplayName
		}
		if owner.Category == "" {
			owner.Category = e.Category
		}
		if owner.Publisher == "" {
			owner.Publisher = e.Publisher
		}
	} else {
		e.UnifiedID = unifiedID
		e.CanonicalID = newID
		r.entities[newID] = e
	}
	delete(r.entities, oldID)
	r.aliases[oldID] = newID
	r.byUnified[unifiedID] = newID

	r.logger.Debug("entity adopted unified id",
		slog.String("canonical_id", newID),
		slog.String("previous_id", oldID),
		slog.String("unified_id", unifiedID))
}

func (r *Resolver) indexName(id string, meta Metadata) {
	key, ok := r.fallbackKey(meta)
	if !ok {
		return
	}
	if _, taken := r.byName[key]; !taken {
		r.byName[key] = id
	}
	for _, seen := range r.namesSeen[key.name] {
		if r.Canonical(seen) == id {
			return
		}
	}
	r.namesSeen[key.name] = append(r.namesSeen[key.name], id)
}

func (r *Resolver) fallbackKey(meta Metadata) (nameKey, bool) {
	name := NormalizeName(meta.DisplayName)
	if name == "" {
		return nameKey{}, false
	}
	key := nameKey{name: name, category: normalizeField(meta.Category)}
	if r.opts.MatchPublisher {
		key.publisher = normalizeField(meta.Publisher)
	}
	return key, true
}

func (r *Resolver) recordConflict(c Conflict) {
	r.conflicts = append(r.conflicts, c)
	r.logger.Warn("identity conflict, keeping entities separate",
		slog.String("name", c.Name),
		slog.String("existing_id", c.ExistingID),
		slog.String("field", c.Field),
		slog.String("existing", c.Existing),
		slog.String("incoming", c.Incoming),
		slog.String("platform", string(c.Platform)),
		slog.String("native_id", c.NativeID))
}

// Canonical follows the alias chain from a possibly retired id to the
// current canonical id. Unknown ids pass through unchanged.
func (r *Resolver) Canonical(id string) string {
	for {
		next, ok := r.aliases[id]
		if !ok {
			return id
		}
		id = next
	}
}

// Entity returns the entity for a canonical id, following aliases.
func (r *Resolver) Entity(canonicalID string) (Entity, bool) {
	e, ok := r.entities[r.Canonical(canonicalID)]
	if !ok {
		return Entity{}, false
	}
	return *e, true
}

// Entities returns all resolved entities sorted by canonical id.
func (r *Resolver) Entities() []Entity {
	out := make([]Entity, 0, len(r.entities))
	for _, e := range r.entities {
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CanonicalID < out[j].CanonicalID })
	return out
}

// Conflicts returns the diagnostics recorded so far, in resolution order.
func (r *Resolver) Conflicts() []Conflict {
	return append([]Conflict(nil), r.conflicts...)
}

func canonicalFromUnified(unifiedID string) string {
	return uuid.NewSHA1(entityNamespace, []byte("unified:"+unifiedID)).String()
}

func canonicalFromName(key nameKey) string {
	seed := "name:" + key.name + "|" + key.category
	if key.publisher != "" {
		seed += "|" + key.publisher
	}
	return uuid.NewSHA1(entityNamespace, []byte(seed)).String()
}
