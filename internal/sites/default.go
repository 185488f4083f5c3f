package sites

import "fmt"

// WechatPattern is the article path on the messaging platform.
const WechatPattern = "mp.weixin.qq.com/s"

// NewRegistryFromRules registers a SelectorAdapter for every rule pattern
// plus the WeChat article adapter.
func NewRegistryFromRules(rules []Rule, opts ...AdapterOption) (*Registry, error) {
	r := NewRegistry()
	for _, rule := range rules {
		a := NewSelectorAdapter(rule, opts...)
		for _, p := range rule.Patterns {
			if err := r.Register(p, a); err != nil {
				return nil, fmt.Errorf("rule %s: %w", rule.Name, err)
			}
		}
	}
	if err := r.Register(WechatPattern, NewWechatAdapter(opts...)); err != nil {
		return nil, err
	}
	return r, nil
}

// DefaultRegistry builds the registry from the embedded rules.
func DefaultRegistry() (*Registry, error) {
	rules, err := DefaultRules()
	if err != nil {
		return nil, err
	}
	return NewRegistryFromRules(rules)
}
