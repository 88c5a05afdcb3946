package contracts

import (
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/xssnick/tonutils-go/tlb"
	"github.com/xssnick/tonutils-go/tvm/cell"
)

const (
	abiSuffix = ".abi.json"
	tvcSuffix = ".base64"
)

// LoadDir registers every <Name>.abi.json of the build directory. Code is taken
// from <Name>.base64, a base64 encoded state init, when it is present.
func LoadDir(reg *Registry, dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("failed to read artifacts dir: %w", err)
	}

	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), abiSuffix) {
			continue
		}
		name := strings.TrimSuffix(e.Name(), abiSuffix)

		a, err := LoadArtifact(dir, name)
		if err != nil {
			return fmt.Errorf("failed to load %s: %w", name, err)
		}
		if err = reg.Register(a); err != nil {
			return err
		}
		log.Debug().Str("name", name).Str("code_hash", a.CodeHash).Msg("artifact loaded")
	}
	return nil
}

func LoadArtifact(dir, name string) (*Artifact, error) {
	data, err := os.ReadFile(filepath.Join(dir, name+abiSuffix))
	if err != nil {
		return nil, err
	}
	abi, err := ParseABI(data)
	if err != nil {
		return nil, err
	}

	tvc, err := os.ReadFile(filepath.Join(dir, name+tvcSuffix))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			// interface only, can still be bound by address
			return NewArtifact(name, abi, nil), nil
		}
		return nil, err
	}

	code, err := CodeFromStateInit(strings.TrimSpace(string(tvc)))
	if err != nil {
		return nil, err
	}
	return NewArtifact(name, abi, code), nil
}

func CodeFromStateInit(b64 string) (*cell.Cell, error) {
	boc, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, fmt.Errorf("failed to decode tvc: %w", err)
	}

	c, err := cell.FromBOC(boc)
	if err != nil {
		return nil, fmt.Errorf("failed to parse tvc boc: %w", err)
	}

	var si tlb.StateInit
	if err = tlb.LoadFromCell(&si, c.BeginParse()); err != nil {
		return nil, fmt.Errorf("failed to parse state init: %w", err)
	}
	if si.Code == nil {
		return nil, fmt.Errorf("state init has no code")
	}
	return si.Code, nil
}
