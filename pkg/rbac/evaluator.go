package rbac

import (
	"context"
	"fmt"
)

// MembershipReader is the read side of the membership store needed for evaluation
type MembershipReader interface {
	// GetRole returns the member's role; ok is false when no membership exists
	GetRole(ctx context.Context, tenantID, userID string) (role Role, ok bool, err error)

	// ListGrantLevels returns the explicit grants recorded for the pair
	ListGrantLevels(ctx context.Context, tenantID, userID string) ([]PermissionLevel, error)
}

// Decision is the result of an authorization query
type Decision struct {
	Allowed  bool
	Level    PermissionLevel
	Source   LevelSource
	Required PermissionLevel
}

// Evaluator answers authorization queries for (tenant, user) pairs
type Evaluator struct {
	reader MembershipReader
	cache  Cache
}

// EvaluatorOption configures an Evaluator
type EvaluatorOption func(*Evaluator)

// WithCache enables snapshot caching
func WithCache(cache Cache) EvaluatorOption {
	return func(e *Evaluator) {
		e.cache = cache
	}
}

// NewEvaluator creates a new evaluator over the given reader
func NewEvaluator(reader MembershipReader, opts ...EvaluatorOption) *Evaluator {
	e := &Evaluator{reader: reader}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Snapshot loads the membership state for the pair, consulting the cache first
func (e *Evaluator) Snapshot(ctx context.Context, tenantID, userID string) (*Snapshot, error) {
	if tenantID == "" || userID == "" {
		return &Snapshot{}, nil
	}

	key := CacheKey(tenantID, userID)
	var (
		stamp Stamp
		fill  bool
	)
	if e.cache != nil {
		cached, err := e.cache.Get(ctx, key)
		if err == nil && cached != nil {
			return cached, nil
		}
		// taken before the store read so an Invalidate in between cancels the fill
		stamp, err = e.cache.Stamp(ctx, key)
		fill = err == nil
	}

	role, ok, err := e.reader.GetRole(ctx, tenantID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get role: %w", err)
	}

	grants, err := e.reader.ListGrantLevels(ctx, tenantID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list grants: %w", err)
	}

	snap := &Snapshot{Member: ok, Role: role, Grants: grants}
	if !ok {
		snap.Role = ""
	}

	if fill {
		// A skipped or failed cache write only costs a later store read
		_, _ = e.cache.SetIfUnchanged(ctx, key, stamp, snap)
	}

	return snap, nil
}

// Resolve returns the source of the user's effective level
func (e *Evaluator) Resolve(ctx context.Context, tenantID, userID string) (LevelSource, error) {
	snap, err := e.Snapshot(ctx, tenantID, userID)
	if err != nil {
		return nil, err
	}
	return ResolveLevel(*snap), nil
}

// EffectiveLevel returns max(grants) when grants exist, else the role level, else 0
func (e *Evaluator) EffectiveLevel(ctx context.Context, tenantID, userID string) (PermissionLevel, error) {
	src, err := e.Resolve(ctx, tenantID, userID)
	if err != nil {
		return LevelNone, err
	}
	return src.Level(), nil
}

// Check evaluates a level requirement and reports the full decision
func (e *Evaluator) Check(ctx context.Context, tenantID, userID string, required PermissionLevel) (*Decision, error) {
	if !required.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidLevel, int(required))
	}

	src, err := e.Resolve(ctx, tenantID, userID)
	if err != nil {
		return nil, err
	}

	return &Decision{
		Allowed:  src.Level() >= required,
		Level:    src.Level(),
		Source:   src,
		Required: required,
	}, nil
}

// Authorize reports whether the user's effective level meets the requirement
func (e *Evaluator) Authorize(ctx context.Context, tenantID, userID string, required PermissionLevel) (bool, error) {
	d, err := e.Check(ctx, tenantID, userID, required)
	if err != nil {
		return false, err
	}
	return d.Allowed, nil
}

// AuthorizeRole reports whether the user is a member whose role is in roles.
// Explicit grants are not consulted.
func (e *Evaluator) AuthorizeRole(ctx context.Context, tenantID, userID string, roles ...Role) (bool, error) {
	snap, err := e.Snapshot(ctx, tenantID, userID)
	if err != nil {
		return false, err
	}
	return snap.Member && snap.Role.OneOf(roles...), nil
}

// Invalidate drops any cached snapshot for the pair and cancels cache fills
// whose store read started before the call
func (e *Evaluator) Invalidate(ctx context.Context, tenantID, userID string) error {
	if e.cache == nil {
		return nil
	}
	if err := e.cache.Delete(ctx, CacheKey(tenantID, userID)); err != nil {
		return fmt.Errorf("failed to invalidate authorization cache: %w", err)
	}
	return nil
}

// Grants returns the explicit grants recorded for the pair
func (e *Evaluator) Grants(ctx context.Context, tenantID, userID string) ([]PermissionLevel, error) {
	snap, err := e.Snapshot(ctx, tenantID, userID)
	if err != nil {
		return nil, err
	}
	return snap.Grants, nil
}
