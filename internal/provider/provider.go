package provider

// Provider is an external AI service bound to its adapter. The adapter
// implements any subset of the capability interfaces.
type Provider struct {
	Name       string
	Model      string
	Configured bool
	Adapter    any

	purposes map[Purpose]bool
}

// New creates a provider enabled for the given purposes. A provider without
// a credential is still registered so it shows up in health reports.
func New(name, model string, configured bool, adapter any, purposes ...Purpose) *Provider {
	enabled := make(map[Purpose]bool, len(purposes))
	for _, p := range purposes {
		enabled[p] = true
	}
	return &Provider{
		Name:       name,
		Model:      model,
		Configured: configured,
		Adapter:    adapter,
		purposes:   enabled,
	}
}

// EnabledFor reports whether the operator enabled the provider for purpose.
func (p *Provider) EnabledFor(purpose Purpose) bool {
	return p.purposes[purpose]
}

// Capability returns the provider's adapter as capability C when it
// implements it.
func Capability[C any](p *Provider) (C, bool) {
	c, ok := p.Adapter.(C)
	return c, ok
}

// Names returns the names of providers in order.
func Names(providers []*Provider) []string {
	names := make([]string, 0, len(providers))
	for _, p := range providers {
		names = append(names, p.Name)
	}
	return names
}
