package tile

import (
	"fmt"
	"sort"
	"sync"

	"github.com/banshee-data/tilewatch/internal/monitoring"
)

// Properties is the property record stored per alias. Learned types carry the
// confidence recorded at commit time; the pre-seeded player record carries its
// directional animation frames.
type Properties struct {
	Walkable         bool                `json:"walkable"`
	Interactable     bool                `json:"interactable"`
	Learned          bool                `json:"learned,omitempty"`
	IsPlayer         bool                `json:"is_player,omitempty"`
	RGB              string              `json:"rgb,omitempty"`
	AnimationFrames  map[string][]string `json:"animation_frames,omitempty"`
	CurrentDirection string              `json:"current_direction,omitempty"`
	Confidence       float64             `json:"confidence,omitempty"`
}

// Mappings is the serialized registry form. Color keys are canonical "r,g,b"
// strings and id keys are decimal strings, so the file diffs cleanly and stays
// readable.
type Mappings struct {
	ColorToType    map[string]TypeID     `json:"color_to_type"`
	TypeAliases    map[string]string     `json:"type_aliases"`
	TileProperties map[string]Properties `json:"tile_properties"`
	NextTypeID     TypeID                `json:"next_type_id"`
}

// Store persists registry mappings. Implemented by FileStore.
type Store interface {
	// Load returns the stored mappings, or fs.ErrNotExist-wrapped error if
	// nothing has been stored yet.
	Load() (*Mappings, error)
	// Save durably writes the mappings. A failed Save must leave any
	// previously stored mappings intact.
	Save(*Mappings) error
}

// Registry holds the color→id, id→alias and alias→properties mappings. It is
// the sole durable state of the learner; every mutation persists synchronously
// through the Store before the in-memory view changes, so a failed write never
// leaves the two out of sync.
type Registry struct {
	mu          sync.RWMutex
	colorToType map[RGB]TypeID
	aliases     map[TypeID]string
	properties  map[string]Properties
	nextID      TypeID
	store       Store
}

// NewRegistry loads mappings from the store, seeding and persisting the
// default mappings when the store is empty.
func NewRegistry(store Store) (*Registry, error) {
	r := &Registry{
		colorToType: make(map[RGB]TypeID),
		aliases:     make(map[TypeID]string),
		properties:  make(map[string]Properties),
		store:       store,
	}

	m, err := store.Load()
	if err != nil {
		monitoring.Logf("registry: no stored mappings (%v), seeding defaults", err)
		m = DefaultMappings()
		if err := store.Save(m); err != nil {
			return nil, fmt.Errorf("seed default mappings: %w", err)
		}
	}
	if err := r.install(m); err != nil {
		return nil, err
	}
	return r, nil
}

// install replaces the in-memory maps from a serialized form.
func (r *Registry) install(m *Mappings) error {
	colors := make(map[RGB]TypeID, len(m.ColorToType))
	for key, id := range m.ColorToType {
		c, err := ParseColorKey(key)
		if err != nil {
			return fmt.Errorf("load mappings: %w", err)
		}
		colors[c] = id
	}
	aliases := make(map[TypeID]string, len(m.TypeAliases))
	for idStr, alias := range m.TypeAliases {
		var id TypeID
		if _, err := fmt.Sscanf(idStr, "%d", &id); err != nil {
			return fmt.Errorf("load mappings: invalid type id %q", idStr)
		}
		aliases[id] = alias
	}
	props := make(map[string]Properties, len(m.TileProperties))
	for alias, p := range m.TileProperties {
		props[alias] = p
	}

	r.colorToType = colors
	r.aliases = aliases
	r.properties = props
	r.nextID = m.NextTypeID
	return nil
}

// snapshotLocked builds the serialized form from the in-memory maps.
// Caller must hold at least a read lock.
func (r *Registry) snapshotLocked() *Mappings {
	m := &Mappings{
		ColorToType:    make(map[string]TypeID, len(r.colorToType)),
		TypeAliases:    make(map[string]string, len(r.aliases)),
		TileProperties: make(map[string]Properties, len(r.properties)),
		NextTypeID:     r.nextID,
	}
	for c, id := range r.colorToType {
		m.ColorToType[c.Key()] = id
	}
	for id, alias := range r.aliases {
		m.TypeAliases[fmt.Sprintf("%d", id)] = alias
	}
	for alias, p := range r.properties {
		m.TileProperties[alias] = p
	}
	return m
}

// Snapshot returns a copy of the current serialized form.
func (r *Registry) Snapshot() *Mappings {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snapshotLocked()
}

// NextTypeID returns the id the next commit would allocate.
func (r *Registry) NextTypeID() TypeID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.nextID
}

// Classify resolves a color to its tile type.
func (r *Registry) Classify(c RGB) Classification {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if id, ok := r.colorToType[c]; ok {
		return Known(id)
	}
	return Unknown
}

// AliasOf returns the alias for a classification, falling back to
// AliasUnknown for unknown or unregistered ids.
func (r *Registry) AliasOf(cl Classification) string {
	if !cl.Known {
		return AliasUnknown
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if alias, ok := r.aliases[cl.ID]; ok {
		return alias
	}
	return AliasUnknown
}

// PropertiesOf returns the property record for an alias.
func (r *Registry) PropertiesOf(alias string) (Properties, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.properties[alias]
	return p, ok
}

// AliasGrid resolves a full color grid to aliases through the registry.
// Returns nil for a nil grid.
func (r *Registry) AliasGrid(colors [][]RGB) [][]string {
	if colors == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([][]string, len(colors))
	for y, row := range colors {
		out[y] = make([]string, len(row))
		for x, c := range row {
			alias := AliasUnknown
			if id, ok := r.colorToType[c]; ok {
				if a, ok := r.aliases[id]; ok {
					alias = a
				}
			}
			out[y][x] = alias
		}
	}
	return out
}

// Define registers a new alias with the given properties, allocating the next
// type id. The id is only consumed once the persistence write succeeds.
func (r *Registry) Define(alias string, props Properties) (TypeID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.defineLocked(alias, props, nil)
}

// MapColor binds a color to an already-defined type id. It never overwrites
// an existing mapping.
func (r *Registry) MapColor(c RGB, id TypeID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.colorToType[c]; ok {
		return fmt.Errorf("color %s already mapped to type %d", c.Key(), existing)
	}
	if _, ok := r.aliases[id]; !ok {
		return fmt.Errorf("type id %d is not defined", id)
	}

	staged := r.snapshotLocked()
	staged.ColorToType[c.Key()] = id
	if err := r.store.Save(staged); err != nil {
		return fmt.Errorf("persist registry: %w", err)
	}
	r.colorToType[c] = id
	return nil
}

// DefineTile atomically defines a new alias and maps every given color to the
// allocated id in a single persistence write. On failure nothing changes, so
// retrying a commit is safe and cannot double-allocate ids.
func (r *Registry) DefineTile(alias string, props Properties, colors []RGB) (TypeID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.defineLocked(alias, props, colors)
}

// defineLocked stages alias + color mappings against a snapshot, persists it,
// and only then installs the changes in memory. Caller must hold the write
// lock.
func (r *Registry) defineLocked(alias string, props Properties, colors []RGB) (TypeID, error) {
	if alias == "" {
		return 0, fmt.Errorf("alias must not be empty")
	}
	if _, ok := r.properties[alias]; ok {
		return 0, fmt.Errorf("alias %q already defined", alias)
	}
	for _, c := range colors {
		if existing, ok := r.colorToType[c]; ok {
			return 0, fmt.Errorf("color %s already mapped to type %d", c.Key(), existing)
		}
	}

	id := r.nextID
	staged := r.snapshotLocked()
	staged.TypeAliases[fmt.Sprintf("%d", id)] = alias
	staged.TileProperties[alias] = props
	for _, c := range colors {
		staged.ColorToType[c.Key()] = id
	}
	staged.NextTypeID = id + 1

	if err := r.store.Save(staged); err != nil {
		return 0, fmt.Errorf("persist registry: %w", err)
	}

	r.aliases[id] = alias
	r.properties[alias] = props
	for _, c := range colors {
		r.colorToType[c] = id
	}
	r.nextID = id + 1
	return id, nil
}

// NextLetterAlias returns the first unused single uppercase letter, scanning
// A..Z. Multi-character aliases never collide with this scheme.
func (r *Registry) NextLetterAlias() (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	used := make(map[string]bool)
	for _, alias := range r.aliases {
		if len(alias) == 1 {
			used[alias] = true
		}
	}
	// properties may hold seeded aliases with no id mapping yet
	for alias := range r.properties {
		if len(alias) == 1 {
			used[alias] = true
		}
	}
	for ch := 'A'; ch <= 'Z'; ch++ {
		alias := string(ch)
		if !used[alias] {
			return alias, nil
		}
	}
	return "", fmt.Errorf("single-letter alias space exhausted")
}

// Aliases returns all defined aliases in sorted order.
func (r *Registry) Aliases() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.properties))
	for alias := range r.properties {
		out = append(out, alias)
	}
	sort.Strings(out)
	return out
}

// DefaultMappings returns the seed registry: the two static map tiles, the
// player sprite with its directional animation frames, and the unknown
// fallback record.
func DefaultMappings() *Mappings {
	playerFrames := map[string][]string{
		"left":  {"151,130,198", "155,123,159"},
		"up":    {"129,127,255"},
		"down":  {"144,133,251"},
		"right": {"170,127,181", "188,134,201"},
	}
	colorToType := map[string]TypeID{
		"132,132,132": 0, // block
		"40,47,96":    1, // brick
	}
	for _, frames := range playerFrames {
		for _, key := range frames {
			colorToType[key] = 2
		}
	}
	return &Mappings{
		ColorToType: colorToType,
		TypeAliases: map[string]string{
			"0": "block",
			"1": "brick",
			"2": AliasPlayer,
		},
		TileProperties: map[string]Properties{
			"block": {Walkable: false, Interactable: false},
			"brick": {Walkable: true, Interactable: true},
			AliasPlayer: {
				Walkable:         false,
				Interactable:     false,
				IsPlayer:         true,
				AnimationFrames:  playerFrames,
				CurrentDirection: "down",
			},
			AliasUnknown: {Walkable: true, Interactable: false},
		},
		NextTypeID: 3,
	}
}
