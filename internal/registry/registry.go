// Package registry provides a message parser registry for dispatching
// GCN messages to appropriate parsers.
package registry

import (
	"sort"
	"sync"

	"gcn_parser/internal/gcn"
)

// Result is the common interface for all parse results.
type Result interface {
	Type() string      // e.g., "binary_packet", "raw"
	MessageID() string // The ingest ID of the source message
}

// Parser is implemented by each message parser.
type Parser interface {
	// Name returns the parser's unique identifier.
	Name() string

	// Kinds returns which stream kinds this parser handles.
	// Empty slice means "all kinds".
	Kinds() []gcn.Kind

	// QuickCheck performs a cheap check on the message before Parse.
	// Returns true if the message MIGHT be parseable (false = definitely skip).
	QuickCheck(msg *gcn.Message) bool

	// Priority determines order when multiple parsers match the same kind.
	// Lower number = checked first.
	Priority() int

	// Parse attempts to parse the message, returns nil if not applicable.
	Parse(msg *gcn.Message) Result
}

// Registry holds all registered parsers organised for efficient dispatch.
type Registry struct {
	mu sync.RWMutex

	// byKind maps stream kinds to parser slices, sorted by Priority (ascending)
	byKind map[gcn.Kind][]Parser

	// global holds parsers that check all messages
	global []Parser

	// catchAll holds parsers that run only when nothing else matched
	catchAll []Parser

	sorted bool
}

// New creates a new Registry instance.
func New() *Registry {
	return &Registry{
		byKind: make(map[gcn.Kind][]Parser),
	}
}

var defaultRegistry = New()

// Default returns the global registry instance.
func Default() *Registry {
	return defaultRegistry
}

// Register adds a parser to the default registry.
// Called during init() in each parser package.
func Register(p Parser) {
	defaultRegistry.Register(p)
}

// RegisterCatchAll adds a catch-all parser that runs when nothing else matches.
func RegisterCatchAll(p Parser) {
	defaultRegistry.RegisterCatchAll(p)
}

// Register adds a parser to the registry.
func (r *Registry) Register(p Parser) {
	r.mu.Lock()
	defer r.mu.Unlock()

	kinds := p.Kinds()
	if len(kinds) == 0 {
		r.global = append(r.global, p)
	} else {
		for _, k := range kinds {
			r.byKind[k] = append(r.byKind[k], p)
		}
	}
	r.sorted = false
}

// RegisterCatchAll adds a catch-all parser.
func (r *Registry) RegisterCatchAll(p Parser) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.catchAll = append(r.catchAll, p)
	r.sorted = false
}

// Sort sorts all parser slices by priority. Call before dispatching.
func (r *Registry) Sort() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sorted {
		return
	}

	byPriority := func(ps []Parser) {
		sort.SliceStable(ps, func(i, j int) bool {
			return ps[i].Priority() < ps[j].Priority()
		})
	}
	for k := range r.byKind {
		byPriority(r.byKind[k])
	}
	byPriority(r.global)
	byPriority(r.catchAll)

	r.sorted = true
}

// Dispatch routes a message to appropriate parsers and returns all results.
// Sort() should be called before Dispatch(); otherwise parsers run in
// registration order.
func (r *Registry) Dispatch(msg *gcn.Message) []Result {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var results []Result

	// 1. Kind-specific parsers
	for _, p := range r.byKind[msg.Kind] {
		if !p.QuickCheck(msg) {
			continue
		}
		if result := p.Parse(msg); result != nil {
			results = append(results, result)
		}
	}

	// 2. Parsers for all kinds
	for _, p := range r.global {
		if !p.QuickCheck(msg) {
			continue
		}
		if result := p.Parse(msg); result != nil {
			results = append(results, result)
		}
	}

	// 3. If nothing matched, try catch-all parsers
	if len(results) == 0 {
		for _, p := range r.catchAll {
			if result := p.Parse(msg); result != nil {
				results = append(results, result)
			}
		}
	}

	return results
}

// DispatchFirst returns only the first successful parse result.
func (r *Registry) DispatchFirst(msg *gcn.Message) Result {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.byKind[msg.Kind] {
		if !p.QuickCheck(msg) {
			continue
		}
		if result := p.Parse(msg); result != nil {
			return result
		}
	}

	for _, p := range r.global {
		if !p.QuickCheck(msg) {
			continue
		}
		if result := p.Parse(msg); result != nil {
			return result
		}
	}

	for _, p := range r.catchAll {
		if result := p.Parse(msg); result != nil {
			return result
		}
	}

	return nil
}

// RegisteredKinds returns all kinds that have parsers registered.
func (r *Registry) RegisteredKinds() []gcn.Kind {
	r.mu.RLock()
	defer r.mu.RUnlock()

	kinds := make([]gcn.Kind, 0, len(r.byKind))
	for k := range r.byKind {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// ParserCount returns the total number of unique registered parsers.
// Parsers registered for multiple kinds are only counted once.
func (r *Registry) ParserCount() int {
	return len(r.AllParsers())
}

// AllParsers returns all registered parsers (global, kind-specific, and catch-all).
func (r *Registry) AllParsers() []Parser {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]bool)
	var result []Parser
	add := func(p Parser) {
		if !seen[p.Name()] {
			seen[p.Name()] = true
			result = append(result, p)
		}
	}

	for _, p := range r.global {
		add(p)
	}
	kinds := make([]gcn.Kind, 0, len(r.byKind))
	for k := range r.byKind {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	for _, k := range kinds {
		for _, p := range r.byKind[k] {
			add(p)
		}
	}
	for _, p := range r.catchAll {
		add(p)
	}

	return result
}
