package apply

import (
	"net/url"
	"strings"
	"sync"
)

const (
	markerFragment   = "thanks"
	markerQueryKey   = "submitted"
	markerQueryValue = "1"
)

// SuccessSignal is the success marker a redirect leaves on the landing URL
// ("#thanks" or "?submitted=1"). It is reported once; the cleaned URL is what the
// page should show afterwards.
type SuccessSignal struct {
	mu       sync.Mutex
	clean    string
	present  bool
	consumed bool
}

func NewSuccessSignal(pageURL string) (*SuccessSignal, error) {
	u, err := url.Parse(pageURL)
	if err != nil {
		return nil, err
	}
	present := HasMarker(u)
	return &SuccessSignal{clean: stripMarker(u).String(), present: present}, nil
}

// Consume reports the marker the first time it is called.
func (s *SuccessSignal) Consume() (cleanURL string, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.present && !s.consumed {
		s.consumed = true
		return s.clean, true
	}
	return s.clean, false
}

// HasMarker reports whether u carries the success marker.
func HasMarker(u *url.URL) bool {
	if u == nil {
		return false
	}
	return u.Fragment == markerFragment || u.Query().Get(markerQueryKey) == markerQueryValue
}

func stripMarker(u *url.URL) *url.URL {
	out := *u
	if out.Fragment == markerFragment {
		out.Fragment = ""
		out.RawFragment = ""
	}
	if out.Query().Get(markerQueryKey) == markerQueryValue {
		out.RawQuery = dropQueryPair(out.RawQuery, markerQueryKey, markerQueryValue)
	}
	return &out
}

// dropQueryPair removes key=value pairs from a raw query and keeps the rest verbatim
// and in order.
func dropQueryPair(rawQuery, key, value string) string {
	parts := strings.Split(rawQuery, "&")
	kept := parts[:0]
	for _, part := range parts {
		k, v, _ := strings.Cut(part, "=")
		if uk, err := url.QueryUnescape(k); err == nil && uk == key {
			if uv, err := url.QueryUnescape(v); err == nil && uv == value {
				continue
			}
		}
		kept = append(kept, part)
	}
	return strings.Join(kept, "&")
}
