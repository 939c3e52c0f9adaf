package factor

// Chain names the three incarnations of one sequential latent variable:
// its value before the first step, and the prev/curr slot names used by
// every time-indexed factor along the chain.
type Chain struct {
	Init string
	Prev string
	Curr string
}

// Step is the descriptor attached to a sequential plate. Each chain entry
// declares one latent carried from step t to step t+1 along that plate.
// An empty Step means the plate has ordinary i.i.d. batch semantics.
type Step struct {
	Chains []Chain
}

// IsEmpty reports whether the descriptor declares no sequential structure.
func (s Step) IsEmpty() bool {
	return len(s.Chains) == 0
}

// InitNames returns the set of init slot names.
func (s Step) InitNames() map[string]bool {
	names := make(map[string]bool, len(s.Chains))
	for _, c := range s.Chains {
		names[c.Init] = true
	}
	return names
}

// PrevNames returns the set of prev slot names.
func (s Step) PrevNames() map[string]bool {
	names := make(map[string]bool, len(s.Chains))
	for _, c := range s.Chains {
		names[c.Prev] = true
	}
	return names
}

// CurrNames returns the set of curr slot names.
func (s Step) CurrNames() map[string]bool {
	names := make(map[string]bool, len(s.Chains))
	for _, c := range s.Chains {
		names[c.Curr] = true
	}
	return names
}
