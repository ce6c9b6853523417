package integration

import (
	"strings"
)

// TestOrderPolicy is the explicit, reviewable rule set that marks storefront orders as
// test orders. Matching is case-insensitive. Test orders are stored and audited like any
// other order but never reach the warehouse.
type TestOrderPolicy struct {
	Enabled             bool     `yaml:"enabled" json:"enabled"`
	Tags                []string `yaml:"tags" json:"tags"`
	EmailDomains        []string `yaml:"email_domains" json:"email_domains"`
	Emails              []string `yaml:"emails" json:"emails"`
	OrderNumberPrefixes []string `yaml:"order_number_prefixes" json:"order_number_prefixes"`
}

// TestOrderDecision is the outcome of classifying an order. Rule names the matching rule
// so the decision can be audited.
type TestOrderDecision struct {
	IsTest bool
	Rule   string
}

// Classify evaluates the policy against an incoming storefront order
func (p TestOrderPolicy) Classify(o StorefrontOrder) TestOrderDecision {
	if !p.Enabled {
		return TestOrderDecision{}
	}
	for _, want := range p.Tags {
		for _, tag := range o.Tags {
			if strings.EqualFold(strings.TrimSpace(tag), want) {
				return TestOrderDecision{IsTest: true, Rule: "tag:" + want}
			}
		}
	}

	email := strings.ToLower(strings.TrimSpace(o.CustomerEmail))
	for _, want := range p.Emails {
		if email != "" && email == strings.ToLower(want) {
			return TestOrderDecision{IsTest: true, Rule: "email:" + want}
		}
	}
	if at := strings.LastIndex(email, "@"); at >= 0 {
		domain := email[at+1:]
		for _, want := range p.EmailDomains {
			if domain == strings.ToLower(want) {
				return TestOrderDecision{IsTest: true, Rule: "email_domain:" + want}
			}
		}
	}

	number := strings.ToLower(o.OrderNumber)
	for _, prefix := range p.OrderNumberPrefixes {
		if prefix != "" && strings.HasPrefix(number, strings.ToLower(prefix)) {
			return TestOrderDecision{IsTest: true, Rule: "order_number_prefix:" + prefix}
		}
	}
	return TestOrderDecision{}
}

// TestOrderPolicySource provides the currently active policy
type TestOrderPolicySource interface {
	Current() TestOrderPolicy
}

// StaticTestOrderPolicy serves a fixed policy
type StaticTestOrderPolicy TestOrderPolicy

// Current implements TestOrderPolicySource
func (s StaticTestOrderPolicy) Current() TestOrderPolicy {
	return TestOrderPolicy(s)
}
