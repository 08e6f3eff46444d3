package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// User-agent selection modes
const (
	AgentModeFixed  = "fixed"
	AgentModePool   = "pool"
	AgentModeRandom = "random"
)

// Page readiness conditions for headless fetches
const (
	WaitNetworkIdle      = "networkidle"
	WaitDOMContentLoaded = "domcontentloaded"
	WaitLoad             = "load"
)

// FetchPolicy holds the ordered per-domain tables used by the fetcher.
// Within each table the first rule whose domain fragment matches wins.
type FetchPolicy struct {
	UserAgents     []UserAgentRule   `yaml:"userAgents"`
	DefaultAgents  []string          `yaml:"defaultAgents"`
	BaseHeaders    map[string]string `yaml:"baseHeaders"`
	Headers        []HeaderRule      `yaml:"headers"`
	WaitConditions []WaitRule        `yaml:"waitConditions"`
	DefaultWait    string            `yaml:"defaultWait"`
}

// UserAgentRule maps domain fragments to an agent selection
type UserAgentRule struct {
	Domains []string `yaml:"domains"`
	Mode    string   `yaml:"mode"`
	Agents  []string `yaml:"agents"`
}

// HeaderRule replaces the caller's extra headers for matching domains
type HeaderRule struct {
	Domains []string          `yaml:"domains"`
	Set     map[string]string `yaml:"set"`
}

// WaitRule picks the headless readiness condition for matching domains
type WaitRule struct {
	Domains   []string `yaml:"domains"`
	Condition string   `yaml:"condition"`
}

// DefaultFetchPolicy returns the built-in tables
func DefaultFetchPolicy() FetchPolicy {
	return FetchPolicy{
		UserAgents: []UserAgentRule{
			{
				Domains: []string{"costco.", "currys.c"},
				Mode:    AgentModeFixed,
				Agents:  []string{"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:88.0) Gecko/20100101 Firefox/88.0"},
			},
			{
				Domains: []string{"noon.com"},
				Mode:    AgentModeFixed,
				Agents:  []string{"Mozilla/5.0 (Macintosh; Intel Mac OS X 10.15; rv:127.0) Gecko/20100101 Firefox/127.0"},
			},
			{
				Domains: []string{"argos.co.uk"},
				Mode:    AgentModePool,
				Agents:  []string{"Mozilla/5.0 (Windows; U; Windows NT 6.1; ko-KR) AppleWebKit/533.20.25  Version/5.0.4 Safari/533.20.27"},
			},
			{
				Domains: []string{"walmart"},
				Mode:    AgentModeRandom,
			},
		},
		DefaultAgents: []string{
			"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/114.0.0.0 Safari/537.36",
			"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/114.0.0.0 Safari/537.36 Edg/114.0.1823.67",
			"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:109.0) Gecko/20100101 Firefox/115.0",
			"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/114.0.0.0 Safari/537.36 OPR/100.0.0.0",
			"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_11_2) AppleWebKit/601.3.9 (KHTML, like Gecko) Version/9.0.2 Safari/601.3.9",
			"Mozilla/5.0 (compatible; Googlebot/2.1; +http://www.google.com/bot.html)",
			"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:109.0) Gecko/20100101 Firefox/118.0",
		},
		BaseHeaders: map[string]string{
			"Accept":          "*/*",
			"DNT":             "1",
			"Sec-Fetch-User":  "1",
			"Accept-Encoding": "gzip, deflate",
		},
		Headers: []HeaderRule{
			{
				Domains: []string{"argos.co.uk"},
				Set:     map[string]string{"Accept-Encoding": "gzip, deflate, br, zstd"},
			},
		},
		WaitConditions: []WaitRule{
			{Domains: []string{"mediamarkt"}, Condition: WaitDOMContentLoaded},
		},
		DefaultWait: WaitNetworkIdle,
	}
}

// LoadFetchPolicy reads a YAML policy file. Tables left empty in the file
// keep their defaults.
func LoadFetchPolicy(path string) (FetchPolicy, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return FetchPolicy{}, fmt.Errorf("read fetch policy: %w", err)
	}

	var fileCfg FetchPolicy
	if err := yaml.Unmarshal(raw, &fileCfg); err != nil {
		return FetchPolicy{}, fmt.Errorf("parse fetch policy: %w", err)
	}

	policy := mergeFetchPolicy(DefaultFetchPolicy(), fileCfg)
	if err := policy.Validate(); err != nil {
		return FetchPolicy{}, err
	}
	return policy, nil
}

func mergeFetchPolicy(base, override FetchPolicy) FetchPolicy {
	if len(override.UserAgents) > 0 {
		base.UserAgents = override.UserAgents
	}
	if len(override.DefaultAgents) > 0 {
		base.DefaultAgents = override.DefaultAgents
	}
	for k, v := range override.BaseHeaders {
		base.BaseHeaders[k] = v
	}
	if len(override.Headers) > 0 {
		base.Headers = override.Headers
	}
	if len(override.WaitConditions) > 0 {
		base.WaitConditions = override.WaitConditions
	}
	if override.DefaultWait != "" {
		base.DefaultWait = override.DefaultWait
	}
	return base
}

// Validate checks the tables are usable
func (p FetchPolicy) Validate() error {
	if len(p.DefaultAgents) == 0 {
		return fmt.Errorf("fetch policy: defaultAgents must not be empty")
	}
	for i, rule := range p.UserAgents {
		if len(rule.Domains) == 0 {
			return fmt.Errorf("fetch policy: userAgents[%d] has no domains", i)
		}
		switch rule.Mode {
		case AgentModeFixed, AgentModePool:
			if len(rule.Agents) == 0 {
				return fmt.Errorf("fetch policy: userAgents[%d] mode %s needs agents", i, rule.Mode)
			}
		case AgentModeRandom:
		default:
			return fmt.Errorf("fetch policy: userAgents[%d] unknown mode %q", i, rule.Mode)
		}
	}
	for i, rule := range p.WaitConditions {
		if !validWait(rule.Condition) {
			return fmt.Errorf("fetch policy: waitConditions[%d] unknown condition %q", i, rule.Condition)
		}
	}
	if !validWait(p.DefaultWait) {
		return fmt.Errorf("fetch policy: unknown defaultWait %q", p.DefaultWait)
	}
	return nil
}

func validWait(condition string) bool {
	switch condition {
	case WaitNetworkIdle, WaitDOMContentLoaded, WaitLoad:
		return true
	}
	return false
}
