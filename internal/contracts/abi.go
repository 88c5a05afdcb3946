package contracts

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

type Param struct {
	Name       string  `json:"name"`
	Type       string  `json:"type"`
	Components []Param `json:"components,omitempty"`
}

type Function struct {
	Name    string  `json:"name"`
	Inputs  []Param `json:"inputs"`
	Outputs []Param `json:"outputs"`
	ID      string  `json:"id,omitempty"`
}

type Event struct {
	Name   string  `json:"name"`
	Inputs []Param `json:"inputs"`
	ID     string  `json:"id,omitempty"`
}

// ABI is a contract interface in the TVM ABI 2.x JSON layout.
type ABI struct {
	ABIVersion int        `json:"ABI version"`
	Version    string     `json:"version,omitempty"`
	Header     []string   `json:"header,omitempty"`
	Functions  []Function `json:"functions"`
	Events     []Event    `json:"events,omitempty"`
}

func ParseABI(data []byte) (*ABI, error) {
	var abi ABI
	if err := json.Unmarshal(data, &abi); err != nil {
		return nil, fmt.Errorf("failed to parse abi: %w", err)
	}
	if abi.ABIVersion == 0 {
		abi.ABIVersion = 2
	}
	return &abi, nil
}

func (a *ABI) HasFunction(name string) bool {
	return a.Function(name) != nil
}

func (a *ABI) Function(name string) *Function {
	for i := range a.Functions {
		if a.Functions[i].Name == name {
			return &a.Functions[i]
		}
	}
	return nil
}

func (a *ABI) versionSuffix() string {
	if a.ABIVersion == 0 {
		return "v2"
	}
	return "v" + strconv.Itoa(a.ABIVersion)
}

// InputID is the selector of a call to the function, high bit is always cleared.
func (f *Function) InputID(abi *ABI) uint32 {
	if id, ok := parseID(f.ID); ok {
		return id & 0x7FFFFFFF
	}
	sig := f.Name + "(" + typeList(f.Inputs) + ")(" + typeList(f.Outputs) + ")" + abi.versionSuffix()
	return signatureID(sig) & 0x7FFFFFFF
}

// OutputID is the selector of the function answer, high bit is always set.
func (f *Function) OutputID(abi *ABI) uint32 {
	return f.InputID(abi) | 0x80000000
}

func (e *Event) EventID(abi *ABI) uint32 {
	if id, ok := parseID(e.ID); ok {
		return id & 0x7FFFFFFF
	}
	sig := e.Name + "(" + typeList(e.Inputs) + ")" + abi.versionSuffix()
	return signatureID(sig) & 0x7FFFFFFF
}

func parseID(id string) (uint32, bool) {
	if id == "" {
		return 0, false
	}
	v, err := strconv.ParseUint(id, 0, 32)
	if err != nil {
		return 0, false
	}
	return uint32(v), true
}

func signatureID(sig string) uint32 {
	h := sha256.Sum256([]byte(sig))
	return binary.BigEndian.Uint32(h[:4])
}

func typeList(params []Param) string {
	types := make([]string, 0, len(params))
	for _, p := range params {
		types = append(types, canonicalType(p))
	}
	return strings.Join(types, ",")
}

func canonicalType(p Param) string {
	if strings.HasPrefix(p.Type, "tuple") {
		return "(" + typeList(p.Components) + ")" + strings.TrimPrefix(p.Type, "tuple")
	}
	return p.Type
}
