package tracing

import (
	"fmt"
	"math/big"

	"github.com/rs/zerolog/log"
	"github.com/xssnick/tonutils-go/tvm/cell"
	"github.com/xssnick/tonutils-tracer/internal/contracts"
	"github.com/xssnick/tonutils-tracer/metrics"
)

// ContractRegistry resolves code fingerprints of deployed contracts.
type ContractRegistry interface {
	ByCodeHash(hash string) *contracts.Artifact
}

// Node is one message of the trace tree.
type Node struct {
	Msg      *Message
	Parent   *Node
	Children []*Node

	Type TraceType
	// Contract is nil when the contract could not be recognized.
	Contract *contracts.Contract
	Decoded  *contracts.DecodedBody
	Error    *PhaseError

	// HasErrorInSubtree is true if this node or any descendant has an unignored error.
	HasErrorInSubtree bool
}

func (n *Node) failed() bool {
	return n.Error != nil && !n.Error.Ignored
}

// session is the read-only view of the tracer given to node construction.
// Only contracts is mutated, and only by deploy resolution.
type session struct {
	contracts *AddressContext
	registry  ContractRegistry
	decoder   contracts.BodyDecoder
	allowed   AllowedCodes

	platforms         map[string]bool
	platformCodeParam string
	consoleAddr       string
}

func (s *session) build(msg *Message, parent *Node) *Node {
	n := &Node{
		Msg:    msg,
		Parent: parent,
	}

	var parentMsg *Message
	if parent != nil {
		parentMsg = parent.Msg
	}

	n.Type = classify(msg, parentMsg)
	if n.Type == TypeUnknown {
		log.Warn().Str("msg_id", msg.ID).Int("kind", int(msg.Kind)).Msg("message of unknown kind, not classified")
	}

	n.Error = evaluate(msg, s.allowed, s.consoleAddr)
	if n.Error != nil {
		metrics.Global.PhaseErrors.WithLabelValues(string(n.Error.Phase), fmt.Sprint(n.Error.Code), fmt.Sprint(n.Error.Ignored)).Inc()
	}

	s.decode(n, s.resolve(n))

	n.HasErrorInSubtree = n.failed()
	return n
}

// evaluate checks transaction phases of msg against the allow-list.
func evaluate(msg *Message, allowed AllowedCodes, consoleAddr string) *PhaseError {
	tx := msg.Transaction
	if tx == nil || msg.Dst == consoleAddr {
		return nil
	}

	skipCompute := tx.Compute != nil && (tx.Compute.Success || tx.Compute.Type == ComputeTypeSkipped) && !tx.Aborted
	skipAction := tx.Action != nil && tx.Action.Success

	var e *PhaseError
	switch {
	case !skipCompute && tx.Compute != nil && tx.Compute.ExitCode != 0:
		e = &PhaseError{Phase: PhaseCompute, Code: tx.Compute.ExitCode}
	case !skipAction && tx.Action != nil && tx.Action.ResultCode != 0:
		e = &PhaseError{Phase: PhaseAction, Code: tx.Action.ResultCode}
	default:
		return nil
	}
	e.Ignored = allowed.Allows(e.Phase, msg.Dst, e.Code)
	return e
}

// resolve finds the contract of the node and returns the one to decode with.
// For a failed deploy they differ: the contract is used for decoding only and
// is neither bound nor set on the node.
func (s *session) resolve(n *Node) *contracts.Contract {
	switch n.Type {
	case TypeDeploy:
		a := s.registry.ByCodeHash(n.Msg.CodeHash)
		if a == nil {
			log.Debug().Str("msg_id", n.Msg.ID).Str("code_hash", n.Msg.CodeHash).Msg("deployed code is not recognized")
			return nil
		}
		c := &contracts.Contract{Artifact: a, Address: n.Msg.Dst}
		if n.Error != nil {
			return c
		}
		n.Contract = c
		s.contracts.Bind(n.Msg.Dst, c)
	case TypeFunctionCall, TypeBounce:
		n.Contract = s.contracts.Lookup(n.Msg.Dst)
	case TypeEvent, TypeEventOrReturn:
		n.Contract = s.contracts.Lookup(n.Msg.Src)
	}
	return n.Contract
}

func (s *session) decode(n *Node, c *contracts.Contract) {
	if n.Msg.Dst == s.consoleAddr {
		// printed by the tracer when the tree is fetched
		return
	}

	switch {
	case n.Type == TypeTransfer, n.Type == TypeBounce:
		return
	case n.Type == TypeFunctionCall && n.Parent != nil && noAnswerExpected(n.Parent.Decoded):
		// callee has no answer entry for a zero answer id
		return
	case n.Error != nil && n.Error.Phase == PhaseCompute && n.Error.Code == ExitCodeWrongFunctionID:
		return
	case c == nil:
		return
	}

	decoded, err := s.decoder.DecodeBody(c.ABI, n.Msg.Body, n.Msg.Kind == KindInternal)
	if err != nil {
		metrics.Global.Decodes.WithLabelValues("failed").Inc()
		log.Debug().Err(err).Str("msg_id", n.Msg.ID).Str("contract", c.Name).Msg("message body is not decodable")
		return
	}
	metrics.Global.Decodes.WithLabelValues("ok").Inc()
	n.Decoded = decoded

	if n.Type == TypeEventOrReturn {
		if c.ABI.HasFunction(decoded.Name) {
			n.Type = TypeFunctionReturn
		} else {
			n.Type = TypeEvent
		}
	}

	if n.Type == TypeDeploy && s.platforms[c.Name] {
		s.resolvePlatform(n, c)
	}
}

// resolvePlatform replaces a platform contract with the contract whose code
// the platform installs into itself.
func (s *session) resolvePlatform(n *Node, platform *contracts.Contract) {
	code, ok := n.Decoded.Values[s.platformCodeParam].(*cell.Cell)
	if !ok || code == nil {
		log.Debug().Str("msg_id", n.Msg.ID).Str("platform", platform.Name).Msg("platform deploy without embedded code")
		return
	}

	a := s.registry.ByCodeHash(contracts.CodeHash(code))
	if a == nil {
		log.Debug().Str("msg_id", n.Msg.ID).Str("platform", platform.Name).Msg("platform code is not recognized")
		return
	}
	if n.Error != nil {
		return
	}

	c := &contracts.Contract{Artifact: a, Address: n.Msg.Dst, Platform: platform.Name}
	n.Contract = c
	s.contracts.Bind(n.Msg.Dst, c)
}

func noAnswerExpected(parent *contracts.DecodedBody) bool {
	if parent == nil {
		return false
	}
	id, ok := parent.Values["answerId"].(*big.Int)
	return ok && id != nil && id.Sign() == 0
}
