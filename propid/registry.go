package propid

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
)

// FieldDef names one field value within a Namespace, e.g. {P2, 4, "STORAGE"}.
type FieldDef struct {
	Level Level
	Value uint8
	Name  string
}

// Namespace groups a set of FieldDefs that apply to properties matching
// Prefix/Mask. The default global namespace has Prefix 0, Mask 0 and covers
// every property that isn't claimed more specifically by another namespace.
type Namespace struct {
	Prefix uint32
	Mask   uint32
	Defs   []FieldDef

	byLevelValue map[Level]map[uint8]string
	byLevelName  map[Level]map[string]uint8 // reverse index, built lazily
	indexOnce    sync.Once
}

func (ns *Namespace) buildIndex() {
	ns.indexOnce.Do(func() {
		ns.byLevelValue = make(map[Level]map[uint8]string)
		ns.byLevelName = make(map[Level]map[string]uint8)
		for _, d := range ns.Defs {
			if ns.byLevelValue[d.Level] == nil {
				ns.byLevelValue[d.Level] = make(map[uint8]string)
				ns.byLevelName[d.Level] = make(map[string]uint8)
			}
			ns.byLevelValue[d.Level][d.Value] = d.Name
			ns.byLevelName[d.Level][strings.ToLower(d.Name)] = d.Value
		}
	})
}

func (ns *Namespace) nameFor(level Level, value uint8) (string, bool) {
	ns.buildIndex()
	m, ok := ns.byLevelValue[level]
	if !ok {
		return "", false
	}
	name, ok := m[value]
	return name, ok
}

func (ns *Namespace) valueFor(level Level, name string) (uint8, bool) {
	ns.buildIndex()
	m, ok := ns.byLevelName[level]
	if !ok {
		return 0, false
	}
	v, ok := m[strings.ToLower(name)]
	return v, ok
}

// matches reports whether this namespace covers prop: either it is the
// global (zero mask) namespace, or prop's masked prefix equals ns.Prefix.
func (ns *Namespace) matches(prop uint32) bool {
	if ns.Mask == 0 {
		return true
	}
	return prop&ns.Mask == ns.Prefix
}

// Registry resolves property IDs to and from dotted names across one or
// more namespaces, most-specific namespace wins. It also hands out process
// -unique global IDs stamped into the P1_AUX_24 auxiliary field.
type Registry struct {
	mu         sync.RWMutex
	namespaces []*Namespace
	globalSeq  atomic.Uint32
}

// NewRegistry creates a registry seeded with the standard global namespace
// (prefix 0, mask 0) covering every field defined in PROP_LIST.
func NewRegistry() *Registry {
	r := &Registry{}
	r.AddNamespace(globalNamespace())
	return r
}

// AddNamespace inserts ns into the registry, keeping namespaces sorted by
// descending mask specificity (popcount of Mask) so the deepest, most
// specific namespace is checked first during resolution.
func (r *Registry) AddNamespace(ns *Namespace) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.namespaces = append(r.namespaces, ns)
	sortNamespacesBySpecificity(r.namespaces)
}

func sortNamespacesBySpecificity(list []*Namespace) {
	for i := 1; i < len(list); i++ {
		j := i
		for j > 0 && popcount32(list[j].Mask) > popcount32(list[j-1].Mask) {
			list[j], list[j-1] = list[j-1], list[j]
			j--
		}
	}
}

func popcount32(v uint32) int {
	n := 0
	for v != 0 {
		n += int(v & 1)
		v >>= 1
	}
	return n
}

// namespaceFor returns the deepest matching namespace for a field lookup at
// level, falling back to the global namespace if no specific one defines
// the field.
func (r *Registry) namespaceFor(prop uint32, level Level) *Namespace {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var fallback *Namespace
	for _, ns := range r.namespaces {
		if ns.Mask == 0 {
			fallback = ns
			continue
		}
		if ns.matches(prop) {
			if _, ok := ns.nameFor(level, Field(prop, level)); ok {
				return ns
			}
		}
	}
	return fallback
}

// GetName renders prop as a dotted name, e.g. "SYS.STORAGE.INFO.COUNT".
// Array fields render as "name[n]"; fields with no known definition render
// as "<n>". Traversal stops early once an array field consumes the
// following level as its index.
func (r *Registry) GetName(prop uint32) string {
	var parts []string

	level := P1
	for level <= P4 {
		raw := Field(prop, level)

		if level != P4 && FieldIsArray(raw) {
			fieldVal := raw &^ 0x80
			ns := r.namespaceFor(prop, level)
			name, ok := ns.nameFor(level, fieldVal)
			if !ok {
				name = fmt.Sprintf("<%d>", fieldVal)
			}
			index := GetIndex(prop, level)
			parts = append(parts, fmt.Sprintf("%s[%d]", name, index))
			level += 2 // skip the index field, it was consumed above
			continue
		}

		ns := r.namespaceFor(prop, level)
		name, ok := ns.nameFor(level, raw)
		if !ok {
			name = fmt.Sprintf("<%d>", raw)
		}
		parts = append(parts, name)
		level++
	}

	return strings.Join(parts, ".")
}

// ParseName parses a dotted name back into a property ID. Tokens of the
// form "name[n]" set the array marker bit on that field and store n in the
// following field; tokens of the form "<n>" specify an unknown/raw field
// value directly. Parsing fails unless the name resolves to exactly four
// field levels.
func (r *Registry) ParseName(name string) (uint32, error) {
	tokens := splitDotted(strings.TrimSpace(name))

	var prop uint32
	level := P1

	for _, tok := range tokens {
		if level > P4 {
			return 0, fmt.Errorf("propid: name %q has too many components", name)
		}

		arrIndex := -1
		fieldTok := tok
		if idx := strings.IndexByte(tok, '['); idx >= 0 && strings.HasSuffix(tok, "]") {
			fieldTok = tok[:idx]
			n, err := strconv.Atoi(tok[idx+1 : len(tok)-1])
			if err != nil {
				return 0, fmt.Errorf("propid: bad array index in %q: %w", tok, err)
			}
			arrIndex = n
		}

		var fieldVal uint8
		if strings.HasPrefix(fieldTok, "<") && strings.HasSuffix(fieldTok, ">") {
			n, err := strconv.Atoi(fieldTok[1 : len(fieldTok)-1])
			if err != nil {
				return 0, fmt.Errorf("propid: bad raw field %q: %w", fieldTok, err)
			}
			fieldVal = uint8(n)
		} else {
			ns := r.namespaceForName(level, fieldTok)
			if ns == nil {
				return 0, fmt.Errorf("propid: unknown field %q at level %d", fieldTok, level)
			}
			v, _ := ns.valueFor(level, fieldTok)
			fieldVal = v
		}

		if arrIndex >= 0 {
			prop |= arrMarker(level) | uint32(fieldVal)<<shiftFor(level)
			prop = SetIndex(prop, level, uint8(arrIndex))
			level += 2
		} else {
			prop |= uint32(fieldVal) << shiftFor(level)
			level++
		}
	}

	if level != P4+1 {
		return 0, fmt.Errorf("propid: name %q does not resolve to a complete property", name)
	}

	return prop, nil
}

func (r *Registry) namespaceForName(level Level, fieldTok string) *Namespace {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, ns := range r.namespaces {
		if _, ok := ns.valueFor(level, fieldTok); ok {
			return ns
		}
	}
	return nil
}

// ParseName is a package-level convenience wrapper for the zero-value
// default registry use case; most callers should hold their own Registry.
func ParseName(r *Registry, name string) (uint32, error) {
	return r.ParseName(name)
}

// NewGlobalID returns an atomically incrementing identifier stamped into
// the P1_AUX_24 auxiliary field, suitable for ephemeral IDs (connections,
// requests) that don't warrant a namespace entry.
func (r *Registry) NewGlobalID() uint32 {
	n := r.globalSeq.Add(1)
	return Aux24(n)
}

func globalNamespace() *Namespace {
	return &Namespace{
		Prefix: 0,
		Mask:   0,
		Defs: []FieldDef{
			{P1, 1, "APP"}, {P1, 2, "SYS"}, {P1, 3, "HW"}, {P1, 4, "STATS"},
			{P1, 5, "NET"}, {P1, 6, "SENSOR"}, {P1, 7, "RSRC"}, {P1, 8, "CMD"},
			{P1, 9, "EVENT"}, {P1, 10, "WARN"}, {P1, 11, "AUX_8_16"},
			{P1, 12, "AUX_24"}, {P1, 13, "DEBUG"}, {P1, 14, "ERROR"},

			{P2, 1, "INFO"}, {P2, 2, "SYS"}, {P2, 3, "HW"}, {P2, 4, "STORAGE"},
			{P2, 5, "CON"}, {P2, 6, "USB"}, {P2, 7, "SPI"}, {P2, 8, "I2C"},
			{P2, 9, "CRON"}, {P2, 10, "PRNG"}, {P2, 11, "BUTTON"},

			{P3, 1, "INFO"}, {P3, 2, "LOCAL"}, {P3, 3, "REMOTE"},
			{P3, 4, "MESSAGE"}, {P3, 5, "PROP"}, {P3, 6, "TARGET"},
			{P3, 7, "LIMIT"}, {P3, 8, "BUILD"}, {P3, 9, "CRON"}, {P3, 10, "MEM"},

			{P4, 1, "VALUE"}, {P4, 2, "KIND"}, {P4, 3, "NAME"}, {P4, 4, "COUNT"},
			{P4, 5, "VERSION"}, {P4, 6, "MIN"}, {P4, 7, "MAX"}, {P4, 8, "FLAGS"},
			{P4, 9, "TIMEOUT"}, {P4, 10, "INVALID"}, {P4, 11, "ACCESS"},
			{P4, 12, "UPDATE"}, {P4, 13, "TASK"}, {P4, 14, "QUERY"},
			{P4, 15, "SUSPEND"}, {P4, 16, "RESUME"}, {P4, 17, "ATTACH"},
			{P4, 18, "DETACH"}, {P4, 19, "SIZE"}, {P4, 20, "LOC"},
			{P4, 21, "PRESS"}, {P4, 22, "RELEASE"}, {P4, 23, "ON"}, {P4, 24, "OFF"},
		},
	}
}
