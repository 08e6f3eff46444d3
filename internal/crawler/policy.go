package crawler

import (
	"math/rand"
	"net/http"
	"net/url"

	"github.com/dealmungchi/pricewatcher/config"
	"github.com/dealmungchi/pricewatcher/helpers"
)

const randomAgentChars = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// Policy decides the user agent, headers and headless wait condition of a
// request from ordered first-match domain tables.
type Policy struct {
	cfg config.FetchPolicy
}

// NewPolicy creates a policy from the configured tables
func NewPolicy(cfg config.FetchPolicy) *Policy {
	return &Policy{cfg: cfg}
}

// DefaultPolicy uses the built-in tables
func DefaultPolicy() *Policy {
	return NewPolicy(config.DefaultFetchPolicy())
}

// SelectUserAgent picks the agent for a URL
func (p *Policy) SelectUserAgent(rawURL string) string {
	host := matchTarget(rawURL)
	for _, rule := range p.cfg.UserAgents {
		if !helpers.ContainsFold(host, rule.Domains...) {
			continue
		}
		switch rule.Mode {
		case config.AgentModeFixed:
			if len(rule.Agents) > 0 {
				return rule.Agents[0]
			}
		case config.AgentModePool:
			return pick(rule.Agents)
		case config.AgentModeRandom:
			return randomAgent(16)
		}
	}
	return pick(p.cfg.DefaultAgents)
}

// Headers returns the base headers merged with the first matching domain
// override. The adapter's extra headers apply only when no override matches.
func (p *Policy) Headers(rawURL string, extra map[string]string) http.Header {
	headers := make(http.Header, len(p.cfg.BaseHeaders)+len(extra))
	for k, v := range p.cfg.BaseHeaders {
		headers.Set(k, v)
	}

	host := matchTarget(rawURL)
	overrides := extra
	for _, rule := range p.cfg.Headers {
		if helpers.ContainsFold(host, rule.Domains...) {
			overrides = rule.Set
			break
		}
	}
	for k, v := range overrides {
		headers.Set(k, v)
	}
	return headers
}

// WaitCondition returns the headless readiness condition for a URL
func (p *Policy) WaitCondition(rawURL string) string {
	host := matchTarget(rawURL)
	for _, rule := range p.cfg.WaitConditions {
		if helpers.ContainsFold(host, rule.Domains...) {
			return rule.Condition
		}
	}
	return p.cfg.DefaultWait
}

// matchTarget returns the host of rawURL, or rawURL itself when it has none
func matchTarget(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return rawURL
	}
	return u.Host
}

func pick(agents []string) string {
	if len(agents) == 0 {
		return ""
	}
	return agents[rand.Intn(len(agents))]
}

func randomAgent(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = randomAgentChars[rand.Intn(len(randomAgentChars))]
	}
	return string(b)
}
