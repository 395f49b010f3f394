package refresh

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// ReadTargets reads one public name per line. Blank lines and lines starting
// with "#" are ignored; "@" and t.me prefixes are stripped.
func ReadTargets(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open target list: %w", err)
	}
	defer f.Close()

	var names []string
	seen := make(map[string]bool)
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		name := NormalizeName(sc.Text())
		if name == "" || strings.HasPrefix(name, "#") {
			continue
		}
		key := strings.ToLower(name)
		if seen[key] {
			continue
		}
		seen[key] = true
		names = append(names, name)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read target list: %w", err)
	}
	return names, nil
}

// NormalizeName turns "@name", "t.me/name" or a full link into "name".
func NormalizeName(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "#") {
		return s
	}
	for _, p := range []string{"https://", "http://"} {
		s = strings.TrimPrefix(s, p)
	}
	for _, p := range []string{"t.me/", "telegram.me/", "@"} {
		s = strings.TrimPrefix(s, p)
	}
	s = strings.TrimSuffix(s, "/")
	return s
}
