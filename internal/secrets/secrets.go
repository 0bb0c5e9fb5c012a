// Package secrets resolves configuration values that point at SSM
// parameters, e.g. "ssm:/lumenforge/prod/smtp-password".
package secrets

import (
	"context"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"

	"github.com/lumenforge/lumenforge-web/internal/xerrors"
)

// Prefix marks a value as an SSM parameter name.
const Prefix = "ssm:"

// parameterGetter is the subset of the SSM API needed to read a parameter.
type parameterGetter interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// Resolver fetches and caches SSM parameters. Safe for concurrent use.
type Resolver struct {
	client parameterGetter

	mu    sync.Mutex
	cache map[string]string
}

// NewResolver returns a Resolver. client may be nil when no value uses SSM.
func NewResolver(client *ssm.Client) *Resolver {
	if client == nil {
		return newResolver(nil)
	}
	return newResolver(client)
}

func newResolver(client parameterGetter) *Resolver {
	return &Resolver{client: client, cache: make(map[string]string)}
}

// IsRef reports whether value names an SSM parameter.
func IsRef(value string) bool {
	return strings.HasPrefix(value, Prefix)
}

// Resolve returns value unchanged unless it starts with "ssm:", in which
// case the named parameter is fetched with decryption. Successful lookups
// are cached for the life of the Resolver.
func (r *Resolver) Resolve(ctx context.Context, value string) (string, error) {
	if !IsRef(value) {
		return value, nil
	}
	name := strings.TrimSpace(strings.TrimPrefix(value, Prefix))
	if name == "" {
		return "", xerrors.New("empty SSM parameter name")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if v, ok := r.cache[name]; ok {
		return v, nil
	}
	if r.client == nil {
		return "", xerrors.Newf("SSM parameter %s requested but no SSM client is configured", name)
	}

	out, err := r.client.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(name),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		return "", xerrors.Wrapf(err, "get SSM parameter %s", name)
	}
	if out.Parameter == nil || out.Parameter.Value == nil {
		return "", xerrors.Newf("SSM parameter %s has no value", name)
	}

	v := *out.Parameter.Value
	r.cache[name] = v
	return v, nil
}

// ResolveAll resolves every pointer in place and stops at the first error.
func (r *Resolver) ResolveAll(ctx context.Context, values ...*string) error {
	for _, p := range values {
		if p == nil {
			continue
		}
		v, err := r.Resolve(ctx, *p)
		if err != nil {
			return err
		}
		*p = v
	}
	return nil
}
