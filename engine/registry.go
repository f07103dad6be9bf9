package engine

import (
	"crypto/sha256"
	"fmt"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/gatehouse-io/gatehouse/model"
)

// snapshot is an immutable collection of engines indexed by definition id.
type snapshot struct {
	engines  map[string]*Engine
	checksum string
}

// Registry is a read-optimized, thread-safe store of engines keyed by
// definition id. It uses atomic pointer swap for lock-free concurrent reads;
// Replace rebuilds the whole snapshot, so redeploying definitions never
// blocks in-flight resolves.
type Registry struct {
	snap atomic.Pointer[snapshot]
}

// NewRegistry creates a Registry from the given engines.
func NewRegistry(engines ...*Engine) *Registry {
	r := &Registry{}
	r.Replace(engines...)
	return r
}

// Replace atomically swaps the registry contents with a new snapshot built
// from the given engines.
func (r *Registry) Replace(engines ...*Engine) {
	s := &snapshot{engines: make(map[string]*Engine, len(engines))}

	var checksumParts []string
	for _, e := range engines {
		def := e.Definition()
		s.engines[def.ID] = e
		checksumParts = append(checksumParts, def.Checksum)
	}

	sort.Strings(checksumParts)
	combined := strings.Join(checksumParts, ":")
	s.checksum = fmt.Sprintf("%x", sha256.Sum256([]byte(combined)))

	r.snap.Store(s)
}

func (r *Registry) current() *snapshot {
	return r.snap.Load()
}

// Lookup returns the engine for a definition id without checking the payload
// kind.
func (r *Registry) Lookup(definitionID string) (*Engine, bool) {
	e, ok := r.current().engines[definitionID]
	return e, ok
}

// Resolve returns the engine for a definition id, checking the caller's
// payload kind against the definition's type token. A mismatch is a typed
// error rather than a silently wrong engine.
func (r *Registry) Resolve(definitionID, payloadKind string) (*Engine, error) {
	e, ok := r.current().engines[definitionID]
	if !ok {
		return nil, model.NewNotFoundError(fmt.Sprintf("definition %q not found", definitionID))
	}
	if want := e.Definition().PayloadKind; want != "" && want != payloadKind {
		return nil, model.NewBadRequestError(
			fmt.Sprintf("definition %q expects payload kind %q, got %q", definitionID, want, payloadKind),
		)
	}
	return e, nil
}

// IDs returns the registered definition ids in sorted order.
func (r *Registry) IDs() []string {
	s := r.current()
	ids := make([]string, 0, len(s.engines))
	for id := range s.engines {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Checksum returns the combined checksum of all registered definitions,
// usable as a deploy fingerprint.
func (r *Registry) Checksum() string {
	return r.current().checksum
}
