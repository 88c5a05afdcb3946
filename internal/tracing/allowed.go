package tracing

import "slices"

type Phase string

const (
	PhaseCompute Phase = "compute"
	PhaseAction  Phase = "action"
)

// PhaseCodes is a set of exit codes per transaction phase.
type PhaseCodes struct {
	Compute []int32 `json:"compute,omitempty"`
	Action  []int32 `json:"action,omitempty"`
}

func (p PhaseCodes) has(phase Phase, code int32) bool {
	switch phase {
	case PhaseCompute:
		return slices.Contains(p.Compute, code)
	case PhaseAction:
		return slices.Contains(p.Action, code)
	}
	return false
}

func (p PhaseCodes) union(o PhaseCodes) PhaseCodes {
	return PhaseCodes{
		Compute: appendUnique(slices.Clone(p.Compute), o.Compute...),
		Action:  appendUnique(slices.Clone(p.Action), o.Action...),
	}
}

func (p PhaseCodes) without(o PhaseCodes) PhaseCodes {
	return PhaseCodes{
		Compute: removeCodes(p.Compute, o.Compute),
		Action:  removeCodes(p.Action, o.Action),
	}
}

func (p PhaseCodes) empty() bool {
	return len(p.Compute) == 0 && len(p.Action) == 0
}

// AllowedCodes is an immutable allow-list of exit codes which are not treated
// as failures. Codes in Global are excused for every address, codes in
// Addresses only for messages to that destination.
//
// All With* and Without* methods return a new value and never modify the receiver.
type AllowedCodes struct {
	Global    PhaseCodes            `json:"global"`
	Addresses map[string]PhaseCodes `json:"addresses,omitempty"`
}

func (a AllowedCodes) WithCompute(codes ...int32) AllowedCodes {
	res := a.clone()
	res.Global = res.Global.union(PhaseCodes{Compute: codes})
	return res
}

func (a AllowedCodes) WithAction(codes ...int32) AllowedCodes {
	res := a.clone()
	res.Global = res.Global.union(PhaseCodes{Action: codes})
	return res
}

func (a AllowedCodes) WithAddressCodes(addr string, codes PhaseCodes) AllowedCodes {
	res := a.clone()
	res.Addresses[addr] = res.Addresses[addr].union(codes)
	return res
}

func (a AllowedCodes) WithoutCodes(codes PhaseCodes) AllowedCodes {
	res := a.clone()
	res.Global = res.Global.without(codes)
	return res
}

func (a AllowedCodes) WithoutAddressCodes(addr string, codes PhaseCodes) AllowedCodes {
	res := a.clone()
	if cur, ok := res.Addresses[addr]; ok {
		cur = cur.without(codes)
		if cur.empty() {
			delete(res.Addresses, addr)
		} else {
			res.Addresses[addr] = cur
		}
	}
	return res
}

// Merge unions both lists, global and per address parts separately.
func (a AllowedCodes) Merge(o AllowedCodes) AllowedCodes {
	res := a.clone()
	res.Global = res.Global.union(o.Global)
	for addr, codes := range o.Addresses {
		res.Addresses[addr] = res.Addresses[addr].union(codes)
	}
	return res
}

// Allows reports whether code on phase is excused for a message sent to addr.
func (a AllowedCodes) Allows(phase Phase, addr string, code int32) bool {
	if a.Global.has(phase, code) {
		return true
	}
	codes, ok := a.Addresses[addr]
	return ok && codes.has(phase, code)
}

func (a AllowedCodes) clone() AllowedCodes {
	res := AllowedCodes{
		Global:    a.Global.union(PhaseCodes{}),
		Addresses: make(map[string]PhaseCodes, len(a.Addresses)),
	}
	for addr, codes := range a.Addresses {
		res.Addresses[addr] = codes.union(PhaseCodes{})
	}
	return res
}

func appendUnique(list []int32, codes ...int32) []int32 {
	for _, c := range codes {
		if !slices.Contains(list, c) {
			list = append(list, c)
		}
	}
	return list
}

func removeCodes(list, codes []int32) []int32 {
	var res []int32
	for _, c := range list {
		if !slices.Contains(codes, c) {
			res = append(res, c)
		}
	}
	return res
}
