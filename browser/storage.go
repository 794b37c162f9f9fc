package browser

import (
	"strings"
	"sync"
	"time"

	fhttp "github.com/bogdanfinn/fhttp"
)

type memoryStorage struct {
	mu    sync.Mutex
	items map[string]string
}

func newMemoryStorage() *memoryStorage {
	return &memoryStorage{items: make(map[string]string)}
}

func (s *memoryStorage) SetItem(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[key] = value
	return nil
}

func (s *memoryStorage) GetItem(key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.items[key]
	return v, ok, nil
}

func (s *memoryStorage) RemoveItem(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, key)
	return nil
}

func (s *memoryStorage) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// cookieJar implements document.cookie for one page. Writes go through the
// Set-Cookie parser, so attributes and expiry behave as in a browser.
type cookieJar struct {
	mu      sync.Mutex
	enabled bool
	now     func() time.Time
	order   []string
	values  map[string]string
}

func newCookieJar(enabled bool) *cookieJar {
	return &cookieJar{enabled: enabled, now: time.Now, values: make(map[string]string)}
}

func (j *cookieJar) Cookie() (string, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	pairs := make([]string, 0, len(j.order))
	for _, name := range j.order {
		pairs = append(pairs, name+"="+j.values[name])
	}
	return strings.Join(pairs, "; "), nil
}

// SetCookie applies one document.cookie assignment. Disabled jars ignore
// writes silently, like a browser with cookies turned off.
func (j *cookieJar) SetCookie(raw string) error {
	resp := fhttp.Response{Header: fhttp.Header{"Set-Cookie": {raw}}}
	cookies := resp.Cookies()
	if len(cookies) == 0 {
		return nil
	}
	c := cookies[0]

	j.mu.Lock()
	defer j.mu.Unlock()
	if !j.enabled {
		return nil
	}

	expired := c.MaxAge < 0 || (!c.Expires.IsZero() && !c.Expires.After(j.now()))
	if expired {
		j.remove(c.Name)
		return nil
	}
	if _, ok := j.values[c.Name]; !ok {
		j.order = append(j.order, c.Name)
	}
	j.values[c.Name] = c.Value
	return nil
}

func (j *cookieJar) remove(name string) {
	if _, ok := j.values[name]; !ok {
		return
	}
	delete(j.values, name)
	for i, n := range j.order {
		if n == name {
			j.order = append(j.order[:i], j.order[i+1:]...)
			break
		}
	}
}

// CookieValue parses a document.cookie string and returns the value of name.
func CookieValue(cookieHeader, name string) (string, bool) {
	for _, pair := range strings.Split(cookieHeader, ";") {
		k, v, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if ok && k == name {
			return v, true
		}
	}
	return "", false
}
