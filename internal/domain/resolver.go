package domain

import (
	"math"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// Field names a canonical attribute the Resolver knows how to find.
type Field string

const (
	FieldID           Field = "id"
	FieldEventType    Field = "event_type"
	FieldSeverity     Field = "severity"
	FieldRoadStatus   Field = "road_status"
	FieldCorridor     Field = "corridor"
	FieldDirection    Field = "direction"
	FieldLatitude     Field = "latitude"
	FieldLongitude    Field = "longitude"
	FieldEndLatitude  Field = "end_latitude"
	FieldEndLongitude Field = "end_longitude"
	FieldStartTime    Field = "start_time"
	FieldEndTime      Field = "end_time"
	FieldDescription  Field = "description"
	FieldLocation     Field = "location"
	FieldCounty       Field = "county"
	FieldGeometry     Field = "geometry"
)

// CanonicalFields lists every Field in resolution-table order.
var CanonicalFields = []Field{
	FieldID, FieldEventType, FieldSeverity, FieldRoadStatus, FieldCorridor,
	FieldDirection, FieldLatitude, FieldLongitude, FieldEndLatitude,
	FieldEndLongitude, FieldStartTime, FieldEndTime, FieldDescription,
	FieldLocation, FieldCounty, FieldGeometry,
}

// Accessor reads one candidate value out of a record.
type Accessor interface {
	Name() string
	Get(rec RawRecord) (any, bool)
}

type pathStep struct {
	key   string
	index int // -1 when the step has no [n] suffix
}

type pathAccessor struct {
	expr  string
	steps []pathStep
}

// Path builds an Accessor from a dotted path with optional single-level array
// indexes, e.g. "properties.core_details.road_names[0]".
func Path(expr string) Accessor {
	parts := strings.Split(expr, ".")
	steps := make([]pathStep, 0, len(parts))
	for _, p := range parts {
		st := pathStep{key: p, index: -1}
		if open := strings.IndexByte(p, '['); open > 0 && strings.HasSuffix(p, "]") {
			if n, err := strconv.Atoi(p[open+1 : len(p)-1]); err == nil && n >= 0 {
				st = pathStep{key: p[:open], index: n}
			}
		}
		steps = append(steps, st)
	}
	return pathAccessor{expr: expr, steps: steps}
}

func (p pathAccessor) Name() string { return p.expr }

func (p pathAccessor) Get(rec RawRecord) (any, bool) {
	var cur any = map[string]any(rec)
	for _, st := range p.steps {
		m, ok := asMap(cur)
		if !ok {
			return nil, false
		}
		cur, ok = m[st.key]
		if !ok {
			return nil, false
		}
		if st.index >= 0 {
			arr, ok := cur.([]any)
			if !ok || st.index >= len(arr) {
				return nil, false
			}
			cur = arr[st.index]
		}
	}
	return cur, present(cur)
}

// keyPath is the path without array indexes, used for unknown-field scanning.
func (p pathAccessor) keyPath() []string {
	out := make([]string, len(p.steps))
	for i, st := range p.steps {
		out[i] = st.key
	}
	return out
}

func asMap(v any) (map[string]any, bool) {
	switch t := v.(type) {
	case map[string]any:
		return t, true
	case RawRecord:
		return map[string]any(t), true
	}
	return nil, false
}

// present treats nil, blank strings, and empty collections as absent.
func present(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case string:
		return strings.TrimSpace(t) != ""
	case []any:
		return len(t) > 0
	case map[string]any:
		return len(t) > 0
	}
	return true
}

// FieldSpec lists the candidates for one canonical field. Standard names are
// tried before legacy ones; a legacy hit is reported to FieldNotes.
type FieldSpec struct {
	Standard  []Accessor
	Legacy    []Accessor
	Normalize func(any) (any, bool)
	// Fallback runs when no candidate produced a usable value.
	Fallback func(RawRecord) (any, bool)
}

// Resolver looks up canonical fields in heterogeneous records.
type Resolver struct {
	specs map[Field]FieldSpec
	known map[string]bool // dotted key paths referenced by any candidate
	notes *FieldNotes
}

// NewResolver builds a Resolver over specs. notes may be nil.
func NewResolver(specs map[Field]FieldSpec, notes *FieldNotes) *Resolver {
	r := &Resolver{specs: specs, known: map[string]bool{}, notes: notes}
	for _, spec := range specs {
		for _, acc := range append(append([]Accessor{}, spec.Standard...), spec.Legacy...) {
			pa, ok := acc.(pathAccessor)
			if !ok {
				continue
			}
			keys := pa.keyPath()
			for i := range keys {
				r.known[strings.Join(keys[:i+1], ".")] = true
			}
		}
	}
	for _, k := range ignoredKeys {
		r.known[k] = true
	}
	return r
}

// NewDefaultResolver returns a Resolver over DefaultFieldSpecs.
func NewDefaultResolver(notes *FieldNotes) *Resolver {
	return NewResolver(DefaultFieldSpecs(), notes)
}

// WithNotes returns a Resolver sharing r's field table that reports to notes.
func (r *Resolver) WithNotes(notes *FieldNotes) *Resolver {
	c := *r
	c.notes = notes
	return &c
}

// Resolve returns the normalized value of field from rec, trying candidates in
// priority order. It never panics; absence is reported as (nil, false).
func (r *Resolver) Resolve(source string, rec RawRecord, field Field) (any, bool) {
	spec, ok := r.specs[field]
	if !ok || rec == nil {
		return nil, false
	}
	if v, ok := tryAll(spec.Standard, spec.Normalize, rec); ok {
		r.notes.fieldResolved(source, field)
		return v, true
	}
	for _, acc := range spec.Legacy {
		if v, ok := tryOne(acc, spec.Normalize, rec); ok {
			r.notes.legacyUsed(source, field, acc.Name())
			r.notes.fieldResolved(source, field)
			return v, true
		}
	}
	if spec.Fallback != nil {
		v, ok := spec.Fallback(rec)
		if ok {
			r.notes.fieldResolved(source, field)
		}
		return v, ok
	}
	return nil, false
}

func tryAll(accs []Accessor, norm func(any) (any, bool), rec RawRecord) (any, bool) {
	for _, acc := range accs {
		if v, ok := tryOne(acc, norm, rec); ok {
			return v, true
		}
	}
	return nil, false
}

func tryOne(acc Accessor, norm func(any) (any, bool), rec RawRecord) (v any, ok bool) {
	defer func() {
		if recover() != nil {
			v, ok = nil, false
		}
	}()
	raw, found := acc.Get(rec)
	if !found {
		return nil, false
	}
	if norm == nil {
		return raw, true
	}
	return norm(raw)
}

// ScanUnknown reports record keys that no candidate refers to, descending into
// nested objects only along known paths. XML attribute ("@id") and text
// ("#text") keys are decoder markup and never reported.
func (r *Resolver) ScanUnknown(source string, rec RawRecord) {
	if r.notes == nil {
		return
	}
	r.scan(source, "", rec)
}

func (r *Resolver) scan(source, prefix string, m map[string]any) {
	for k, v := range m {
		if strings.HasPrefix(k, "@") || strings.HasPrefix(k, "#") {
			continue
		}
		full := k
		if prefix != "" {
			full = prefix + "." + k
		}
		if !r.known[full] {
			r.notes.unknownKey(source, full)
			continue
		}
		if nested, ok := v.(map[string]any); ok {
			r.scan(source, full, nested)
		}
	}
}

// resolveAs resolves field and asserts the normalized value to T.
func resolveAs[T any](r *Resolver, source string, rec RawRecord, field Field) (T, bool) {
	var zero T
	v, ok := r.Resolve(source, rec, field)
	if !ok {
		return zero, false
	}
	t, ok := v.(T)
	return t, ok
}

// NoteCount is one aggregated diagnostic.
type NoteCount struct {
	Source string
	Field  Field  // empty for unknown-key notes
	Name   string // source field or key path
	Count  int
}

// FieldNotes collects diagnostics for one ingestion cycle: which sources still
// rely on legacy field names, which keys nothing recognizes, and how many
// canonical fields each source fills. A nil *FieldNotes discards everything.
type FieldNotes struct {
	mu       sync.Mutex
	legacy   map[NoteCount]int
	unknown  map[NoteCount]int
	records  map[string]int
	resolved map[string]map[Field]int
}

// NewFieldNotes returns an empty collector.
func NewFieldNotes() *FieldNotes {
	return &FieldNotes{
		legacy:   map[NoteCount]int{},
		unknown:  map[NoteCount]int{},
		records:  map[string]int{},
		resolved: map[string]map[Field]int{},
	}
}

func (n *FieldNotes) recordSeen(source string) {
	if n == nil {
		return
	}
	n.mu.Lock()
	n.records[source]++
	n.mu.Unlock()
}

func (n *FieldNotes) fieldResolved(source string, field Field) {
	if n == nil {
		return
	}
	n.mu.Lock()
	m, ok := n.resolved[source]
	if !ok {
		m = map[Field]int{}
		n.resolved[source] = m
	}
	m[field]++
	n.mu.Unlock()
}

func (n *FieldNotes) legacyUsed(source string, field Field, name string) {
	if n == nil {
		return
	}
	n.mu.Lock()
	n.legacy[NoteCount{Source: source, Field: field, Name: name}]++
	n.mu.Unlock()
}

func (n *FieldNotes) unknownKey(source, key string) {
	if n == nil {
		return
	}
	n.mu.Lock()
	n.unknown[NoteCount{Source: source, Name: key}]++
	n.mu.Unlock()
}

// Legacy returns legacy-field usages sorted by source, field, and name.
func (n *FieldNotes) Legacy() []NoteCount {
	return n.snapshot(func() map[NoteCount]int { return n.legacy })
}

// Unknown returns unrecognized keys sorted by source and key.
func (n *FieldNotes) Unknown() []NoteCount {
	return n.snapshot(func() map[NoteCount]int { return n.unknown })
}

func (n *FieldNotes) snapshot(pick func() map[NoteCount]int) []NoteCount {
	if n == nil {
		return nil
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	src := pick()
	out := make([]NoteCount, 0, len(src))
	for k, c := range src {
		k.Count = c
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Source != out[j].Source {
			return out[i].Source < out[j].Source
		}
		if out[i].Field != out[j].Field {
			return out[i].Field < out[j].Field
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// SourceCoverage reports how much of the canonical field table one source
// fills during a cycle.
type SourceCoverage struct {
	Source   string
	Records  int
	Fields   map[Field]int // records in which each field resolved
	Coverage float64       // share of canonical fields resolved at least once
	Missing  []Field       // canonical fields never resolved, in CanonicalFields order
	Unmapped []string      // keys no field refers to, sorted
}

// Coverage returns per-source field coverage sorted by source. Only sources
// that produced at least one record appear.
func (n *FieldNotes) Coverage() []SourceCoverage {
	if n == nil {
		return nil
	}
	n.mu.Lock()
	defer n.mu.Unlock()

	unmapped := map[string][]string{}
	for k := range n.unknown {
		unmapped[k.Source] = append(unmapped[k.Source], k.Name)
	}

	out := make([]SourceCoverage, 0, len(n.records))
	for src, records := range n.records {
		c := SourceCoverage{Source: src, Records: records, Fields: map[Field]int{}}
		for f, count := range n.resolved[src] {
			c.Fields[f] = count
		}
		for _, f := range CanonicalFields {
			if c.Fields[f] == 0 {
				c.Missing = append(c.Missing, f)
			}
		}
		resolved := len(CanonicalFields) - len(c.Missing)
		c.Coverage = math.Round(float64(resolved)/float64(len(CanonicalFields))*1000) / 1000
		c.Unmapped = unmapped[src]
		sort.Strings(c.Unmapped)
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Source < out[j].Source })
	return out
}
