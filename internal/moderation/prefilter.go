package moderation

import (
	"fmt"
	"regexp"
	"strings"

	log "github.com/sirupsen/logrus"
)

// PreFilter is the fast keyword/regex blocklist. A hit is actioned
// without spending an LLM call on either path.
type PreFilter struct {
	keywords []string
	patterns []*regexp.Regexp
}

func NewPreFilter(keywords []string, patterns []string) *PreFilter {
	f := &PreFilter{}
	for _, keyword := range keywords {
		keyword = strings.ToLower(strings.TrimSpace(keyword))
		if keyword != "" {
			f.keywords = append(f.keywords, keyword)
		}
	}
	for _, pattern := range patterns {
		compiled, err := regexp.Compile("(?i)" + pattern)
		if err != nil {
			log.WithField("pattern", pattern).WithError(err).Warn("invalid blocklist pattern")
			continue
		}
		f.patterns = append(f.patterns, compiled)
	}
	return f
}

// Check returns the matching rule, or "" when the text passes.
func (f *PreFilter) Check(text string) string {
	lowered := strings.ToLower(text)
	for _, keyword := range f.keywords {
		if strings.Contains(lowered, keyword) {
			return fmt.Sprintf("keyword:%s", keyword)
		}
	}
	for _, pattern := range f.patterns {
		if pattern.MatchString(text) {
			return fmt.Sprintf("regex:%s", pattern.String())
		}
	}
	return ""
}
