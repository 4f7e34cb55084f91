package politeness

import (
	"bufio"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var delayValue = regexp.MustCompile(`\d+(?:\.\d+)?`)

// Rules is the subset of robots.txt the registry enforces for every agent.
type Rules struct {
	DisallowPrefixes []string
	CrawlDelay       time.Duration
	// DelayDeclared reports whether the file set a crawl-delay.
	DelayDeclared bool
}

// ParseRules reads crawl-delay and disallow lines regardless of user-agent grouping.
// Keys are case-insensitive. Empty disallow values are ignored.
func ParseRules(body string, defaultDelay time.Duration) Rules {
	rules := Rules{CrawlDelay: defaultDelay}
	seen := make(map[string]struct{})
	scanner := bufio.NewScanner(strings.NewReader(body))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if idx := strings.IndexByte(line, '#'); idx >= 0 {
			line = strings.TrimSpace(line[:idx])
		}
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		value = strings.TrimSpace(value)
		switch strings.ToLower(strings.TrimSpace(key)) {
		case "crawl-delay":
			match := delayValue.FindString(value)
			if match == "" {
				continue
			}
			secs, err := strconv.ParseFloat(match, 64)
			if err != nil {
				continue
			}
			rules.CrawlDelay = time.Duration(secs * float64(time.Second))
			rules.DelayDeclared = true
		case "disallow":
			if value == "" {
				continue
			}
			if _, dup := seen[value]; dup {
				continue
			}
			seen[value] = struct{}{}
			rules.DisallowPrefixes = append(rules.DisallowPrefixes, value)
		}
	}
	return rules
}

// Allows reports whether path is outside every disallowed prefix.
func (r Rules) Allows(path string) bool {
	if path == "" {
		path = "/"
	}
	for _, prefix := range r.DisallowPrefixes {
		if strings.HasPrefix(path, prefix) {
			return false
		}
	}
	return true
}
