package tracing

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/xssnick/tonutils-tracer/internal/contracts"
	"github.com/xssnick/tonutils-tracer/metrics"
)

// DefaultConsoleAddress is the address of the diagnostic contract of local networks.
const DefaultConsoleAddress = "0:7fffffffffffffffffffffffffffffffffffffffffffffffff123456789abcde"

type Mode int

const (
	// ModeDefault builds and evaluates the tree when tracing is enabled.
	ModeDefault Mode = iota
	// ModeForce builds and evaluates the tree even if tracing is disabled.
	ModeForce
	// ModeDisabled fetches the whole tree without evaluating it.
	ModeDisabled
	// ModeNoWait fetches the root message only and never fails on its content.
	ModeNoWait
)

func (m Mode) String() string {
	switch m {
	case ModeDefault:
		return "default"
	case ModeForce:
		return "force"
	case ModeDisabled:
		return "disabled"
	case ModeNoWait:
		return "no_wait"
	}
	return fmt.Sprintf("mode(%d)", int(m))
}

func (m Mode) validate() error {
	switch m {
	case ModeDefault, ModeForce, ModeDisabled, ModeNoWait:
		return nil
	}
	return &ConfigurationError{Reason: "unknown mode " + m.String()}
}

// ModeFromFlags converts the boolean flags of callers into a Mode.
func ModeFromFlags(force, disable, noWait bool) (Mode, error) {
	switch {
	case force && disable:
		return 0, &ConfigurationError{Reason: "force and disable tracing flags are mutually exclusive"}
	case force && noWait:
		return 0, &ConfigurationError{Reason: "force tracing requires waiting for the transaction tree"}
	case noWait:
		return ModeNoWait, nil
	case disable:
		return ModeDisabled, nil
	case force:
		return ModeForce, nil
	}
	return ModeDefault, nil
}

type Options struct {
	// Enabled turns on evaluation for ModeDefault traces.
	Enabled bool
	// Allowed is merged with the allow-list of every Trace call.
	Allowed AllowedCodes

	// Platforms are contract names which redeploy themselves with embedded code.
	Platforms []string
	// PlatformCodeParam is the deploy parameter carrying the embedded code.
	PlatformCodeParam string
	ConsoleAddress    string

	FetchConcurrency int

	// Output receives the rendered report, nothing is written when nil.
	Output  io.Writer
	Decoder contracts.BodyDecoder
}

func DefaultOptions() Options {
	return Options{
		Enabled:           true,
		Platforms:         []string{"Platform", "DexPlatform"},
		PlatformCodeParam: "code",
		ConsoleAddress:    DefaultConsoleAddress,
		FetchConcurrency:  8,
		Decoder:           contracts.Decoder{},
	}
}

type Tracer struct {
	store     MessageStore
	registry  ContractRegistry
	contracts *AddressContext

	opts Options
}

func NewTracer(store MessageStore, registry ContractRegistry, opts Options) *Tracer {
	def := DefaultOptions()
	if opts.PlatformCodeParam == "" {
		opts.PlatformCodeParam = def.PlatformCodeParam
	}
	if opts.ConsoleAddress == "" {
		opts.ConsoleAddress = def.ConsoleAddress
	}
	if opts.FetchConcurrency <= 0 {
		opts.FetchConcurrency = def.FetchConcurrency
	}
	if opts.Decoder == nil {
		opts.Decoder = def.Decoder
	}
	if registry == nil {
		registry = contracts.NewRegistry()
	}

	return &Tracer{
		store:     store,
		registry:  registry,
		contracts: NewAddressContext(),
		opts:      opts,
	}
}

// WithAllowedCodes returns a tracer with another base allow-list.
// Both tracers share the address context.
func (t *Tracer) WithAllowedCodes(allowed AllowedCodes) *Tracer {
	cp := *t
	cp.opts.Allowed = allowed
	return &cp
}

func (t *Tracer) AllowedCodes() AllowedCodes {
	return t.opts.Allowed
}

// AddToContext makes messages of addr decodable with the contract.
func (t *Tracer) AddToContext(addr string, contract *contracts.Contract) {
	t.contracts.Bind(addr, contract)
}

func (t *Tracer) GetFromContext(addr string) *contracts.Contract {
	return t.contracts.Lookup(addr)
}

func (t *Tracer) Context() *AddressContext {
	return t.contracts
}

// Trace fetches the message tree of rootID and, depending on mode, looks for a
// failed transaction in it. The root message is returned with the nested
// OutMessages whenever the tree was fetched. A *ReportedFailure is returned
// together with the root if an unignored error was found.
func (t *Tracer) Trace(ctx context.Context, rootID string, mode Mode, allowed AllowedCodes) (*Message, error) {
	if err := mode.validate(); err != nil {
		return nil, err
	}

	if mode == ModeNoWait {
		msg, err := t.store.FetchMessage(ctx, rootID)
		if err != nil {
			metrics.Global.Traces.WithLabelValues(mode.String(), "fetch_failed").Inc()
			return nil, fmt.Errorf("failed to fetch root message %s: %w", rootID, err)
		}
		metrics.Global.Traces.WithLabelValues(mode.String(), "skipped").Inc()
		return msg, nil
	}

	root, err := t.fetchTree(ctx, rootID)
	if err != nil {
		metrics.Global.Traces.WithLabelValues(mode.String(), "fetch_failed").Inc()
		return nil, err
	}
	t.printConsole(root)

	if mode == ModeDisabled || (mode == ModeDefault && !t.opts.Enabled) {
		metrics.Global.Traces.WithLabelValues(mode.String(), "skipped").Inc()
		return root, nil
	}

	tree := t.BuildTree(root, t.opts.Allowed.Merge(allowed))
	path := FindRevertedBranch(tree)
	if path == nil {
		metrics.Global.Traces.WithLabelValues(mode.String(), "ok").Inc()
		return root, nil
	}
	metrics.Global.Traces.WithLabelValues(mode.String(), "reverted").Inc()

	var buf bytes.Buffer
	if err = Render(&buf, path); err != nil {
		return nil, fmt.Errorf("failed to render report: %w", err)
	}
	if t.opts.Output != nil {
		if _, err = t.opts.Output.Write(buf.Bytes()); err != nil {
			log.Warn().Err(err).Msg("failed to write trace report")
		}
	}

	last := path[len(path)-1].Node
	return root, &ReportedFailure{
		Phase:  last.Error.Phase,
		Code:   last.Error.Code,
		Path:   path,
		Report: buf.String(),
	}
}

// printConsole logs the lines sent to the console contract, in tree pre-order.
func (t *Tracer) printConsole(root *Message) {
	stack := []*Message{root}
	for len(stack) > 0 {
		msg := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if msg.Dst == t.opts.ConsoleAddress && len(msg.Body) > 0 {
			line, err := contracts.DecodeConsole(t.opts.Decoder, msg.Body)
			if err != nil {
				log.Debug().Err(err).Str("msg_id", msg.ID).Msg("failed to decode console message")
			} else {
				log.Info().Str("src", msg.Src).Msg(line)
			}
		}

		for i := len(msg.OutMessages) - 1; i >= 0; i-- {
			stack = append(stack, msg.OutMessages[i])
		}
	}
}

// fetchTree loads the root and all its descendants level by level. Messages of
// one level are fetched concurrently, children keep the order of OutMsgs.
func (t *Tracer) fetchTree(ctx context.Context, rootID string) (*Message, error) {
	root, err := t.store.FetchMessage(ctx, rootID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch root message %s: %w", rootID, err)
	}

	seen := map[string]bool{root.ID: true}
	level := []*Message{root}
	for len(level) > 0 {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(t.opts.FetchConcurrency)

		for _, parent := range level {
			parent.OutMessages = nil
			if parent.Transaction == nil {
				continue
			}

			parent.OutMessages = make([]*Message, len(parent.Transaction.OutMsgs))
			for i, id := range parent.Transaction.OutMsgs {
				if seen[id] {
					log.Warn().Str("msg_id", id).Str("parent_id", parent.ID).Msg("message is referenced twice in the tree, skipping")
					continue
				}
				seen[id] = true

				g.Go(func() error {
					msg, err := t.store.FetchMessage(gctx, id)
					if err != nil {
						return fmt.Errorf("failed to fetch message %s of %s: %w", id, parent.ID, err)
					}
					parent.OutMessages[i] = msg
					return nil
				})
			}
		}

		if err = g.Wait(); err != nil {
			return nil, err
		}

		var next []*Message
		for _, parent := range level {
			out := parent.OutMessages[:0]
			for _, m := range parent.OutMessages {
				if m != nil {
					out = append(out, m)
				}
			}
			parent.OutMessages = out
			next = append(next, out...)
		}
		level = next
	}
	return root, nil
}

// BuildTree classifies, evaluates and decodes every message of a fetched tree.
// Nodes are built in pre-order, so a deploy binds its address before any later
// message of the tree is resolved.
func (t *Tracer) BuildTree(root *Message, allowed AllowedCodes) *Node {
	if root == nil {
		return nil
	}
	s := t.session(allowed)

	type item struct {
		msg    *Message
		parent *Node
		depth  int
	}

	var tree *Node
	var order []*Node
	maxDepth := 0

	stack := []item{{msg: root, depth: 1}}
	for len(stack) > 0 {
		it := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		n := s.build(it.msg, it.parent)
		if it.parent == nil {
			tree = n
		} else {
			it.parent.Children = append(it.parent.Children, n)
		}
		order = append(order, n)
		maxDepth = max(maxDepth, it.depth)

		for i := len(it.msg.OutMessages) - 1; i >= 0; i-- {
			stack = append(stack, item{msg: it.msg.OutMessages[i], parent: n, depth: it.depth + 1})
		}
	}

	// children always follow their parent in pre-order
	for i := len(order) - 1; i > 0; i-- {
		if n := order[i]; n.HasErrorInSubtree {
			n.Parent.HasErrorInSubtree = true
		}
	}

	metrics.Global.TraceDepth.Observe(float64(maxDepth))
	return tree
}

func (t *Tracer) session(allowed AllowedCodes) *session {
	platforms := make(map[string]bool, len(t.opts.Platforms))
	for _, p := range t.opts.Platforms {
		platforms[p] = true
	}

	return &session{
		contracts:         t.contracts,
		registry:          t.registry,
		decoder:           t.opts.Decoder,
		allowed:           allowed,
		platforms:         platforms,
		platformCodeParam: t.opts.PlatformCodeParam,
		consoleAddr:       t.opts.ConsoleAddress,
	}
}

// IsReportedFailure is a shortcut for errors.As with *ReportedFailure.
func IsReportedFailure(err error) (*ReportedFailure, bool) {
	var rf *ReportedFailure
	if errors.As(err, &rf) {
		return rf, true
	}
	return nil, false
}
