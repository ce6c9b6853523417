// Package policy loads the test-order policy from a reviewable YAML file and keeps it
// current while the file changes.
package policy

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/syncbridge/backend/internal/domain/integration"
)

// Errors returned by the policy package.
var (
	// ErrPolicyNotFound is returned when the policy file does not exist.
	ErrPolicyNotFound = errors.New("policy: file not found")
	// ErrInvalidPolicy is returned when the policy file cannot be used.
	ErrInvalidPolicy = errors.New("policy: invalid test order policy")
)

// document is the on-disk layout:
//
//	test_orders:
//	  enabled: true
//	  tags: [test]
//	  email_domains: [example.com]
type document struct {
	TestOrders integration.TestOrderPolicy `yaml:"test_orders"`
}

// LoadFromFile reads a policy file
func LoadFromFile(path string) (integration.TestOrderPolicy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return integration.TestOrderPolicy{}, fmt.Errorf("%w: %s", ErrPolicyNotFound, path)
		}
		return integration.TestOrderPolicy{}, fmt.Errorf("reading policy file: %w", err)
	}
	return LoadFromBytes(data)
}

// LoadFromBytes parses a policy document. Unknown keys are rejected so a typo does not
// silently disable a rule.
func LoadFromBytes(data []byte) (integration.TestOrderPolicy, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var doc document
	if err := dec.Decode(&doc); err != nil {
		return integration.TestOrderPolicy{}, fmt.Errorf("%w: %v", ErrInvalidPolicy, err)
	}
	p := doc.TestOrders
	if err := validate(p); err != nil {
		return integration.TestOrderPolicy{}, err
	}
	p.Tags = normalize(p.Tags)
	p.Emails = normalize(p.Emails)
	p.EmailDomains = normalize(p.EmailDomains)
	for i, d := range p.EmailDomains {
		p.EmailDomains[i] = strings.TrimPrefix(d, "@")
	}
	p.OrderNumberPrefixes = normalize(p.OrderNumberPrefixes)
	return p, nil
}

func validate(p integration.TestOrderPolicy) error {
	if !p.Enabled {
		return nil
	}
	if len(p.Tags)+len(p.Emails)+len(p.EmailDomains)+len(p.OrderNumberPrefixes) == 0 {
		return fmt.Errorf("%w: enabled policy has no rules", ErrInvalidPolicy)
	}
	for _, e := range p.Emails {
		if !strings.Contains(e, "@") {
			return fmt.Errorf("%w: %q is not an email address", ErrInvalidPolicy, e)
		}
	}
	return nil
}

// normalize trims entries and drops empty ones
func normalize(values []string) []string {
	out := values[:0]
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
