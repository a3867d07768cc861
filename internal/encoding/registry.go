// Package encoding maintains the process-wide categorical vocabulary that maps
// each label of a categorical field to a stable integer code.
package encoding

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/disease-risk-api/internal/domain"
)

// Persister records newly assigned codes so they survive restarts
type Persister interface {
	Append(ctx context.Context, field, label string, code int) error
}

// Registry assigns codes per field in first-seen order, starting at 0.
// Codes are dense and are never reused, reassigned or renumbered.
//
// Lookups of known labels are lock-free; assigning a new label takes the
// owning field's mutex so concurrent first sightings get distinct codes.
type Registry struct {
	fields    sync.Map // field name -> *vocabulary
	persister Persister
	frozen    bool
	logger    *logrus.Logger
}

type vocabulary struct {
	codes  sync.Map // label -> int
	mu     sync.Mutex
	labels []string
}

// Option configures a Registry
type Option func(*Registry)

// WithPersister writes every newly assigned code through p
func WithPersister(p Persister) Option {
	return func(r *Registry) { r.persister = p }
}

// WithFrozen makes Encode reject labels that are not already known
func WithFrozen(frozen bool) Option {
	return func(r *Registry) { r.frozen = frozen }
}

// WithLogger sets the logger used for persistence failures
func WithLogger(logger *logrus.Logger) Option {
	return func(r *Registry) { r.logger = logger }
}

// NewRegistry creates an empty registry
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = logrus.StandardLogger()
	}
	return r
}

func (r *Registry) vocab(field string) *vocabulary {
	if v, ok := r.fields.Load(field); ok {
		return v.(*vocabulary)
	}
	v, _ := r.fields.LoadOrStore(field, &vocabulary{})
	return v.(*vocabulary)
}

// Encode returns the code for label within field, assigning the next code
// if the label has not been seen before.
func (r *Registry) Encode(ctx context.Context, field, label string) (int, error) {
	v := r.vocab(field)
	if code, ok := v.codes.Load(label); ok {
		return code.(int), nil
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	// Another request may have assigned it while we waited
	if code, ok := v.codes.Load(label); ok {
		return code.(int), nil
	}
	if r.frozen {
		return 0, fmt.Errorf("%s=%q: %w", field, label, domain.ErrUnknownLabel)
	}

	code := len(v.labels)
	if err := r.persist(ctx, field, label, code); err != nil {
		return 0, err
	}
	v.labels = append(v.labels, label)
	v.codes.Store(label, code)

	r.logger.WithFields(logrus.Fields{
		"field": field,
		"label": label,
		"code":  code,
	}).Debug("Assigned new categorical code")

	return code, nil
}

// Lookup returns the code of an already known label without assigning one
func (r *Registry) Lookup(field, label string) (int, bool) {
	v, ok := r.fields.Load(field)
	if !ok {
		return 0, false
	}
	code, ok := v.(*vocabulary).codes.Load(label)
	if !ok {
		return 0, false
	}
	return code.(int), true
}

// Seed appends labels to field in order, skipping ones already known.
// Newly seeded codes are written to the persister like any other assignment;
// seeding stops at the first label that cannot be persisted.
func (r *Registry) Seed(ctx context.Context, field string, labels []string) error {
	v := r.vocab(field)
	v.mu.Lock()
	defer v.mu.Unlock()
	for _, label := range labels {
		if _, ok := v.codes.Load(label); ok {
			continue
		}
		code := len(v.labels)
		if err := r.persist(ctx, field, label, code); err != nil {
			return err
		}
		v.labels = append(v.labels, label)
		v.codes.Store(label, code)
	}
	return nil
}

// Restore loads previously persisted labels, ordered by code starting at 0,
// into a field that has no labels yet
func (r *Registry) Restore(field string, labels []string) error {
	v := r.vocab(field)
	v.mu.Lock()
	defer v.mu.Unlock()
	if len(v.labels) != 0 {
		return fmt.Errorf("restoring %s: field already has %d labels", field, len(v.labels))
	}
	seen := make(map[string]bool, len(labels))
	for _, label := range labels {
		if seen[label] {
			return fmt.Errorf("restoring %s: duplicate label %q", field, label)
		}
		seen[label] = true
	}
	for i, label := range labels {
		v.codes.Store(label, i)
	}
	v.labels = append(v.labels, labels...)
	return nil
}

// persist writes an assignment before it becomes visible. A code that was
// not stored is never handed out, so stored codes stay dense. The write
// outlives the caller's cancellation once started.
func (r *Registry) persist(ctx context.Context, field, label string, code int) error {
	if r.persister == nil {
		return nil
	}
	if err := r.persister.Append(context.WithoutCancel(ctx), field, label, code); err != nil {
		r.logger.WithError(err).WithFields(logrus.Fields{
			"field": field,
			"label": label,
			"code":  code,
		}).Error("Failed to persist categorical code")
		return fmt.Errorf("persisting %s=%q: %w", field, label, err)
	}
	return nil
}

// Labels returns a copy of field's labels indexed by code
func (r *Registry) Labels(field string) []string {
	v, ok := r.fields.Load(field)
	if !ok {
		return nil
	}
	vocab := v.(*vocabulary)
	vocab.mu.Lock()
	defer vocab.mu.Unlock()
	out := make([]string, len(vocab.labels))
	copy(out, vocab.labels)
	return out
}

// Fields returns the names of all fields with a vocabulary, sorted
func (r *Registry) Fields() []string {
	var names []string
	r.fields.Range(func(key, _ interface{}) bool {
		names = append(names, key.(string))
		return true
	})
	sort.Strings(names)
	return names
}

// Snapshot returns a copy of every field's labels indexed by code
func (r *Registry) Snapshot() map[string][]string {
	out := make(map[string][]string)
	for _, field := range r.Fields() {
		out[field] = r.Labels(field)
	}
	return out
}
