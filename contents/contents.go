// Package contents resolves content references to the entities comments
// attach to. The entities themselves live in an upstream content
// service; this package only checks existence and fetches display
// metadata.
package contents

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/nasermirzaei89/marginalia/comments"
)

const defaultRequestTimeout = 5 * time.Second

// HTTPResolver resolves references against an upstream content service
// exposing GET {base}/{type}/{id}.
type HTTPResolver struct {
	baseURL string
	client  *http.Client
}

var _ comments.Resolver = (*HTTPResolver)(nil)

func NewHTTPResolver(baseURL string) *HTTPResolver {
	return &HTTPResolver{
		baseURL: baseURL,
		client:  &http.Client{Timeout: defaultRequestTimeout},
	}
}

type entityDocument struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

func (r *HTTPResolver) Resolve(ctx context.Context, ref comments.ContentReference) (*comments.Entity, error) {
	reqURL := fmt.Sprintf("%s/%s/%s", r.baseURL, url.PathEscape(ref.Type), url.PathEscape(ref.ID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to query content service: %w", err)
	}

	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, comments.EntityNotFoundError{Ref: ref}
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("content service returned status %d for %q", resp.StatusCode, ref)
	}

	var doc entityDocument

	err = json.NewDecoder(resp.Body).Decode(&doc)
	if err != nil {
		return nil, fmt.Errorf("failed to decode content service response: %w", err)
	}

	return &comments.Entity{Ref: ref, Title: doc.Title, URL: doc.URL}, nil
}

// PermissiveResolver treats every well-formed reference as existing.
// Meant for deployments without an upstream content service.
type PermissiveResolver struct{}

var _ comments.Resolver = (*PermissiveResolver)(nil)

func NewPermissiveResolver() *PermissiveResolver {
	return &PermissiveResolver{}
}

func (*PermissiveResolver) Resolve(_ context.Context, ref comments.ContentReference) (*comments.Entity, error) {
	return &comments.Entity{Ref: ref}, nil
}
