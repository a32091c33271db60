package dkim

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// defaultArchiveURL serves historical DKIM keys for selectors that have
// been rotated out of DNS.
const defaultArchiveURL = "https://archive.zk.email/api/key"

// Resolver fetches the TXT records holding a domain's DKIM public key.
// Implementations must be safe for concurrent use.
type Resolver interface {
	LookupTXT(ctx context.Context, name string) ([]string, error)
}

// DNSResolver resolves keys through live DNS.
type DNSResolver struct {
	resolver *net.Resolver
}

// NewDNSResolver returns a resolver backed by the system DNS config.
func NewDNSResolver() *DNSResolver {
	return &DNSResolver{resolver: net.DefaultResolver}
}

func (r *DNSResolver) LookupTXT(ctx context.Context, name string) ([]string, error) {
	return r.resolver.LookupTXT(ctx, name)
}

// ArchiveResolver fetches keys from the zk.email key archive, which
// keeps records for selectors no longer published in DNS.
type ArchiveResolver struct {
	baseURL string
	client  *http.Client
}

// NewArchiveResolver returns an archive-backed resolver. An empty
// baseURL selects the public archive.
func NewArchiveResolver(baseURL string, client *http.Client) *ArchiveResolver {
	if baseURL == "" {
		baseURL = defaultArchiveURL
	}
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &ArchiveResolver{baseURL: baseURL, client: client}
}

type archiveRecord struct {
	Value string `json:"value"`
}

func (r *ArchiveResolver) LookupTXT(ctx context.Context, name string) ([]string, error) {
	selector, domain, found := strings.Cut(name, "._domainkey.")
	if !found {
		return nil, fmt.Errorf("%q is not a dkim key record name", name)
	}

	u := fmt.Sprintf("%s?domain=%s&selector=%s", r.baseURL, url.QueryEscape(domain), url.QueryEscape(selector))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", u, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("archive lookup for %s returned status %d", name, resp.StatusCode)
	}

	var records []archiveRecord
	if err := json.NewDecoder(resp.Body).Decode(&records); err != nil {
		return nil, fmt.Errorf("decode archive response: %w", err)
	}
	values := make([]string, 0, len(records))
	for _, rec := range records {
		if rec.Value != "" {
			values = append(values, rec.Value)
		}
	}
	return values, nil
}

// FallbackResolver tries each resolver in order, returning the first
// answer that contains records.
type FallbackResolver struct {
	resolvers []Resolver
}

// NewFallbackResolver chains resolvers; typical use is DNS first with
// the archive as backstop.
func NewFallbackResolver(resolvers ...Resolver) *FallbackResolver {
	return &FallbackResolver{resolvers: resolvers}
}

func (r *FallbackResolver) LookupTXT(ctx context.Context, name string) ([]string, error) {
	var lastErr error
	for _, resolver := range r.resolvers {
		records, err := resolver.LookupTXT(ctx, name)
		if err == nil && len(records) > 0 {
			return records, nil
		}
		if err != nil {
			lastErr = err
		}
	}
	if lastErr != nil {
		return nil, lastErr
	}
	return nil, fmt.Errorf("%w: %s", ErrNoKey, name)
}
