package sites

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
	"sync"

	"github.com/user/harvester/internal/repository"
)

type entry struct {
	prefix string
	parser repository.PageParser
}

// Registry maps URL patterns to page parsers. A pattern is "host[/path-prefix]";
// the host may be a "*.domain" wildcard matching any subdomain.
// Resolution is a host map lookup followed by the longest matching path prefix.
// Exact hosts win over wildcards.
type Registry struct {
	mu        sync.RWMutex
	hosts     map[string][]entry
	wildcards map[string][]entry
}

func NewRegistry() *Registry {
	return &Registry{
		hosts:     make(map[string][]entry),
		wildcards: make(map[string][]entry),
	}
}

// Register adds parser for pattern. Registering the same pattern twice is an error.
func (r *Registry) Register(pattern string, parser repository.PageParser) error {
	host, prefix := splitPattern(pattern)
	if host == "" || parser == nil {
		return fmt.Errorf("invalid site pattern %q", pattern)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	table := r.hosts
	if strings.HasPrefix(host, "*.") {
		table = r.wildcards
		host = host[2:]
	}
	for _, e := range table[host] {
		if e.prefix == prefix {
			return fmt.Errorf("site pattern %q already registered", pattern)
		}
	}
	entries := append(table[host], entry{prefix: prefix, parser: parser})
	sort.SliceStable(entries, func(i, j int) bool {
		return len(entries[i].prefix) > len(entries[j].prefix)
	})
	table[host] = entries
	return nil
}

// Resolve returns the most specific parser for pageURL or a *repository.NoAdapterError.
func (r *Registry) Resolve(pageURL string) (repository.PageParser, error) {
	u, err := url.Parse(pageURL)
	if err != nil || u.Hostname() == "" {
		return nil, &repository.NoAdapterError{URL: pageURL}
	}
	host := strings.ToLower(u.Hostname())
	path := u.Path
	if path == "" {
		path = "/"
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if p := match(r.hosts[host], path); p != nil {
		return p, nil
	}
	labels := strings.Split(host, ".")
	for i := 1; i < len(labels); i++ {
		if p := match(r.wildcards[strings.Join(labels[i:], ".")], path); p != nil {
			return p, nil
		}
	}
	return nil, &repository.NoAdapterError{URL: pageURL}
}

// Len returns the number of registered patterns.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, es := range r.hosts {
		n += len(es)
	}
	for _, es := range r.wildcards {
		n += len(es)
	}
	return n
}

func match(entries []entry, path string) repository.PageParser {
	for _, e := range entries {
		if strings.HasPrefix(path, e.prefix) {
			return e.parser
		}
	}
	return nil
}

func splitPattern(pattern string) (string, string) {
	p := strings.TrimSpace(pattern)
	if i := strings.Index(p, "://"); i >= 0 {
		p = p[i+3:]
	}
	host, prefix := p, ""
	if i := strings.Index(p, "/"); i >= 0 {
		host, prefix = p[:i], p[i:]
	}
	if i := strings.LastIndex(host, ":"); i >= 0 {
		host = host[:i]
	}
	if prefix == "/" {
		prefix = ""
	}
	return strings.ToLower(host), prefix
}
