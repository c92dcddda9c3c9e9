// Package tenant resolves a tenant's stored Sauce Labs credential into
// an authenticated provider client, and runs the validate-then-store
// configuration pipeline.
package tenant

import (
	"context"
	"errors"
	"fmt"

	"github.com/iskodirajga/sauce-hipchat-service/internal/sauce"
	"github.com/iskodirajga/sauce-hipchat-service/internal/settings"
)

// credentialKey is the settings name the credential lives under,
// scoped per tenant.
const credentialKey = "sauceAccount"

var (
	// ErrNotConfigured means the tenant never submitted (or never
	// successfully validated) a credential. Interactive surfaces show a
	// sign-in prompt instead of failing hard.
	ErrNotConfigured = errors.New("tenant: sauce account not configured")

	// ErrValidationFailed means a submitted credential was rejected by
	// the provider. Nothing is persisted in that case.
	ErrValidationFailed = errors.New("tenant: credential validation failed")
)

// Factory builds a provider client from a credential. Injected so tests
// can substitute fakes for the real REST client.
type Factory func(sauce.Credential) sauce.API

// Resolver looks up stored credentials and hands out provider clients.
type Resolver struct {
	store   settings.Store
	factory Factory
}

func NewResolver(store settings.Store, factory Factory) *Resolver {
	if factory == nil {
		factory = func(c sauce.Credential) sauce.API { return sauce.NewClient(c) }
	}
	return &Resolver{store: store, factory: factory}
}

// Resolve returns a provider client bound to the tenant's stored
// credential. It performs no network call: validation already happened
// when the credential was configured.
func (r *Resolver) Resolve(ctx context.Context, clientKey string) (sauce.API, error) {
	cred, err := r.Credential(ctx, clientKey)
	if err != nil {
		return nil, err
	}
	return r.factory(cred), nil
}

// Credential returns the tenant's stored credential without building a
// client. Used by surfaces that only need the hostname/username.
func (r *Resolver) Credential(ctx context.Context, clientKey string) (sauce.Credential, error) {
	var cred sauce.Credential
	err := settings.GetJSON(ctx, r.store, credentialKey, clientKey, &cred)
	if errors.Is(err, settings.ErrNotFound) {
		return sauce.Credential{}, ErrNotConfigured
	}
	if err != nil {
		return sauce.Credential{}, err
	}
	return cred, nil
}

// Client builds a provider client for an already-resolved credential.
func (r *Resolver) Client(cred sauce.Credential) sauce.API {
	return r.factory(cred)
}

// Configure validates a submitted credential against the provider and
// persists it only on success. Strictly sequential: a credential that
// fails validation is never stored, and a store failure after a
// successful validation surfaces to the submitter.
func (r *Resolver) Configure(ctx context.Context, clientKey string, cred sauce.Credential) error {
	if cred.Username == "" || cred.AccessKey == "" {
		return fmt.Errorf("%w: username and access key are required", ErrValidationFailed)
	}
	if err := r.factory(cred).GetAccountDetails(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrValidationFailed, err)
	}
	return settings.SetJSON(ctx, r.store, credentialKey, cred, clientKey)
}
