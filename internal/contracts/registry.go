package contracts

import (
	"encoding/hex"
	"fmt"
	"sort"
	"sync"

	"github.com/xssnick/tonutils-go/tvm/cell"
)

// Artifact is a compiled contract known to the tool.
type Artifact struct {
	Name     string
	ABI      *ABI
	Code     *cell.Cell
	CodeHash string
}

func NewArtifact(name string, abi *ABI, code *cell.Cell) *Artifact {
	a := &Artifact{
		Name: name,
		ABI:  abi,
		Code: code,
	}
	if code != nil {
		a.CodeHash = CodeHash(code)
	}
	return a
}

// Contract is an artifact bound to a live address.
type Contract struct {
	*Artifact
	Address string
	// Platform is the name of the platform contract that deployed this one in place.
	Platform string
}

func (c *Contract) DisplayName() string {
	if c.Platform != "" {
		return "(" + c.Platform + ")" + c.Name
	}
	return c.Name
}

func CodeHash(code *cell.Cell) string {
	return hex.EncodeToString(code.Hash())
}

type Registry struct {
	byName map[string]*Artifact
	byHash map[string]*Artifact

	mx sync.RWMutex
}

func NewRegistry() *Registry {
	return &Registry{
		byName: map[string]*Artifact{},
		byHash: map[string]*Artifact{},
	}
}

func (r *Registry) Register(a *Artifact) error {
	if a == nil || a.Name == "" {
		return fmt.Errorf("artifact without name")
	}
	if a.ABI == nil {
		return fmt.Errorf("artifact %s has no abi", a.Name)
	}

	r.mx.Lock()
	defer r.mx.Unlock()

	if old := r.byName[a.Name]; old != nil && old.CodeHash != "" {
		delete(r.byHash, old.CodeHash)
	}
	r.byName[a.Name] = a
	if a.CodeHash != "" {
		r.byHash[a.CodeHash] = a
	}
	return nil
}

func (r *Registry) ByName(name string) *Artifact {
	r.mx.RLock()
	defer r.mx.RUnlock()
	return r.byName[name]
}

// ByCodeHash resolves a deployed code fingerprint, nil when nothing matches.
func (r *Registry) ByCodeHash(hash string) *Artifact {
	if hash == "" {
		return nil
	}
	r.mx.RLock()
	defer r.mx.RUnlock()
	return r.byHash[hash]
}

// Artifacts returns all known artifacts sorted by name.
func (r *Registry) Artifacts() []*Artifact {
	r.mx.RLock()
	list := make([]*Artifact, 0, len(r.byName))
	for _, a := range r.byName {
		list = append(list, a)
	}
	r.mx.RUnlock()

	sort.Slice(list, func(i, j int) bool {
		return list[i].Name < list[j].Name
	})
	return list
}
