package identity

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// SentInvitation records an invitation delivered by MemoryProvider
type SentInvitation struct {
	Email       string
	RedirectURL string
	Metadata    map[string]interface{}
}

// MemoryProvider is an in-process Provider, Inviter and Authenticator.
// The hook fields let tests inject failures.
type MemoryProvider struct {
	mu          sync.Mutex
	users       map[string]*User
	byEmail     map[string]string
	tokens      map[string]string
	invitations []SentInvitation

	// OnCreate, when set, runs before an identity is created; a non-nil error aborts creation
	OnCreate func(req CreateRequest) error
	// OnDelete, when set, runs before an identity is deleted; a non-nil error aborts deletion
	OnDelete func(id string) error
	// OnInvite, when set, runs before an invitation is recorded
	OnInvite func(email string) error
}

// NewMemoryProvider creates an empty provider
func NewMemoryProvider() *MemoryProvider {
	return &MemoryProvider{
		users:   make(map[string]*User),
		byEmail: make(map[string]string),
		tokens:  make(map[string]string),
	}
}

// AddUser seeds an identity and returns it
func (p *MemoryProvider) AddUser(email, fullName string) *User {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.addLocked(email, fullName, true, nil)
}

// IssueToken maps a bearer token to a user for Authenticate
func (p *MemoryProvider) IssueToken(token, userID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tokens[token] = userID
}

func (p *MemoryProvider) addLocked(email, fullName string, confirmed bool, md map[string]interface{}) *User {
	u := &User{
		ID:             uuid.NewString(),
		Email:          NormalizeEmail(email),
		FullName:       fullName,
		EmailConfirmed: confirmed,
		CreatedAt:      time.Now().UTC(),
		Metadata:       md,
	}
	p.users[u.ID] = u
	p.byEmail[u.Email] = u.ID
	return u
}

func (p *MemoryProvider) GetIdentity(ctx context.Context, id string) (*User, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	u, ok := p.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *u
	return &copied, nil
}

func (p *MemoryProvider) LookupByEmail(ctx context.Context, email string) (*User, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	id, ok := p.byEmail[NormalizeEmail(email)]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *p.users[id]
	return &copied, nil
}

func (p *MemoryProvider) CreateIdentity(ctx context.Context, req CreateRequest) (*User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if p.OnCreate != nil {
		if err := p.OnCreate(req); err != nil {
			return nil, err
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	email := NormalizeEmail(req.Email)
	if _, exists := p.byEmail[email]; exists {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyExists, email)
	}
	u := p.addLocked(email, metadataString(req.Metadata, "full_name"), req.EmailConfirm, req.Metadata)
	copied := *u
	return &copied, nil
}

func (p *MemoryProvider) DeleteIdentity(ctx context.Context, id string) error {
	if p.OnDelete != nil {
		if err := p.OnDelete(id); err != nil {
			return err
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	u, ok := p.users[id]
	if !ok {
		return ErrNotFound
	}
	delete(p.byEmail, u.Email)
	delete(p.users, id)
	return nil
}

func (p *MemoryProvider) SendInvitation(ctx context.Context, email, redirectURL string, metadata map[string]interface{}) error {
	if p.OnInvite != nil {
		if err := p.OnInvite(email); err != nil {
			return err
		}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.invitations = append(p.invitations, SentInvitation{
		Email:       NormalizeEmail(email),
		RedirectURL: redirectURL,
		Metadata:    metadata,
	})
	return nil
}

func (p *MemoryProvider) Authenticate(ctx context.Context, token string) (*User, error) {
	p.mu.Lock()
	id, ok := p.tokens[token]
	p.mu.Unlock()
	if !ok {
		return nil, ErrUnauthenticated
	}
	return p.GetIdentity(ctx, id)
}

// Invitations returns the invitations sent so far
func (p *MemoryProvider) Invitations() []SentInvitation {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]SentInvitation, len(p.invitations))
	copy(out, p.invitations)
	return out
}

// Emails returns every known email, sorted
func (p *MemoryProvider) Emails() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.byEmail))
	for email := range p.byEmail {
		out = append(out, email)
	}
	sort.Strings(out)
	return out
}
