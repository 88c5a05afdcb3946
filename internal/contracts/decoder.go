package contracts

import (
	"errors"
	"fmt"
	"math/big"
	"math/bits"
	"strconv"
	"strings"

	"github.com/xssnick/tonutils-go/tvm/cell"
)

type BodyKind string

const (
	BodyFunctionInput  BodyKind = "function_input"
	BodyFunctionOutput BodyKind = "function_output"
	BodyEvent          BodyKind = "event"
)

// DecodedBody is a message body matched against a contract interface.
// Integers are *big.Int, addresses *address.Address, cells *cell.Cell.
type DecodedBody struct {
	Name   string
	Kind   BodyKind
	Params []string
	Values map[string]any
}

type DecodeError struct {
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return "failed to decode body: " + e.Reason + ": " + e.Err.Error()
	}
	return "failed to decode body: " + e.Reason
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

var ErrUnsupportedType = errors.New("unsupported abi type")

// Decoder decodes message bodies against ABI definitions. It holds no state.
type Decoder struct{}

func (d Decoder) DecodeBody(abi *ABI, body []byte, internal bool) (*DecodedBody, error) {
	if abi == nil {
		return nil, &DecodeError{Reason: "no abi"}
	}
	if len(body) == 0 {
		return nil, &DecodeError{Reason: "empty body"}
	}

	root, err := cell.FromBOC(body)
	if err != nil {
		return nil, &DecodeError{Reason: "bad boc", Err: err}
	}

	s := root.BeginParse()
	id, err := s.LoadUInt(32)
	if err != nil {
		return nil, &DecodeError{Reason: "no function id", Err: err}
	}

	// answers and events never carry a header, so they are matched first
	for i := range abi.Functions {
		f := &abi.Functions[i]
		if uint32(id) == f.OutputID(abi) {
			return decodeParams(f.Name, BodyFunctionOutput, f.Outputs, s)
		}
	}
	for i := range abi.Events {
		e := &abi.Events[i]
		if uint32(id) == e.EventID(abi) {
			return decodeParams(e.Name, BodyEvent, e.Inputs, s)
		}
	}

	if !internal {
		s = root.BeginParse()
		if err = skipExternalHeader(abi, s); err != nil {
			return nil, &DecodeError{Reason: "bad external header", Err: err}
		}
		if id, err = s.LoadUInt(32); err != nil {
			return nil, &DecodeError{Reason: "no function id", Err: err}
		}
	}

	for i := range abi.Functions {
		f := &abi.Functions[i]
		if uint32(id) == f.InputID(abi) {
			return decodeParams(f.Name, BodyFunctionInput, f.Inputs, s)
		}
	}
	return nil, &DecodeError{Reason: fmt.Sprintf("unknown function id 0x%08x", id)}
}

func skipExternalHeader(abi *ABI, s *cell.Slice) error {
	signed, err := s.LoadBoolBit()
	if err != nil {
		return err
	}
	if signed {
		if _, err = s.LoadSlice(512); err != nil {
			return err
		}
	}

	for _, h := range abi.Header {
		switch h {
		case "pubkey":
			has, err := s.LoadBoolBit()
			if err != nil {
				return err
			}
			if has {
				if _, err = s.LoadSlice(256); err != nil {
					return err
				}
			}
		case "time":
			if _, err = s.LoadUInt(64); err != nil {
				return err
			}
		case "expire":
			if _, err = s.LoadUInt(32); err != nil {
				return err
			}
		default:
			return fmt.Errorf("header %q: %w", h, ErrUnsupportedType)
		}
	}
	return nil
}

func decodeParams(name string, kind BodyKind, params []Param, s *cell.Slice) (*DecodedBody, error) {
	r := &reader{s: s}
	res := &DecodedBody{
		Name:   name,
		Kind:   kind,
		Params: make([]string, 0, len(params)),
		Values: make(map[string]any, len(params)),
	}
	for i, p := range params {
		v, err := r.load(p.Type, i == len(params)-1)
		if err != nil {
			return nil, &DecodeError{Reason: "param " + p.Name + " of " + name, Err: err}
		}
		res.Params = append(res.Params, p.Name)
		res.Values[p.Name] = v
	}
	return res, nil
}

type reader struct {
	s *cell.Slice
}

// need moves to the continuation cell when the current one has not enough bits left.
func (r *reader) need(sz uint) error {
	if r.s.BitsLeft() >= sz || r.s.RefsNum() == 0 {
		return nil
	}
	next, err := r.s.LoadRef()
	if err != nil {
		return err
	}
	r.s = next
	return nil
}

// nextRef moves to the continuation cell when the current one is out of bits
// and holds a single ref. The last param is never followed by a continuation.
func (r *reader) nextRef(last bool) error {
	if last || r.s.RefsNum() != 1 || r.s.BitsLeft() != 0 {
		return nil
	}
	next, err := r.s.LoadRef()
	if err != nil {
		return err
	}
	r.s = next
	return nil
}

func (r *reader) load(typ string, last bool) (any, error) {
	switch {
	case typ == "bool":
		if err := r.need(1); err != nil {
			return nil, err
		}
		return r.s.LoadBoolBit()
	case typ == "address" || typ == "address_std":
		if err := r.need(267); err != nil {
			return nil, err
		}
		return r.s.LoadAddr()
	case typ == "cell":
		if err := r.nextRef(last); err != nil {
			return nil, err
		}
		return r.s.LoadRefCell()
	case typ == "bytes":
		if err := r.nextRef(last); err != nil {
			return nil, err
		}
		ref, err := r.s.LoadRef()
		if err != nil {
			return nil, err
		}
		return ref.LoadBinarySnake()
	case typ == "string":
		if err := r.nextRef(last); err != nil {
			return nil, err
		}
		ref, err := r.s.LoadRef()
		if err != nil {
			return nil, err
		}
		return ref.LoadStringSnake()
	case strings.HasPrefix(typ, "optional(") && strings.HasSuffix(typ, ")"):
		if err := r.need(1); err != nil {
			return nil, err
		}
		has, err := r.s.LoadBoolBit()
		if err != nil || !has {
			return nil, err
		}
		return r.load(typ[len("optional(") : len(typ)-1], last)
	case strings.HasPrefix(typ, "varuint"), strings.HasPrefix(typ, "varint"):
		return r.loadVarInt(typ)
	case strings.HasPrefix(typ, "uint"):
		sz, err := typeSize(typ, "uint")
		if err != nil {
			return nil, err
		}
		if err = r.need(sz); err != nil {
			return nil, err
		}
		return r.s.LoadBigUInt(sz)
	case strings.HasPrefix(typ, "int"):
		sz, err := typeSize(typ, "int")
		if err != nil {
			return nil, err
		}
		if err = r.need(sz); err != nil {
			return nil, err
		}
		return r.s.LoadBigInt(sz)
	}
	return nil, fmt.Errorf("%s: %w", typ, ErrUnsupportedType)
}

func (r *reader) loadVarInt(typ string) (*big.Int, error) {
	signed := strings.HasPrefix(typ, "varint")
	prefix := "varuint"
	if signed {
		prefix = "varint"
	}

	n, err := typeSize(typ, prefix)
	if err != nil {
		return nil, err
	}
	lenBits := uint(bits.Len(uint(n - 1)))
	if err = r.need(lenBits); err != nil {
		return nil, err
	}

	ln, err := r.s.LoadUInt(lenBits)
	if err != nil {
		return nil, err
	}
	if ln == 0 {
		return big.NewInt(0), nil
	}
	if err = r.need(uint(ln) * 8); err != nil {
		return nil, err
	}
	if signed {
		return r.s.LoadBigInt(uint(ln) * 8)
	}
	return r.s.LoadBigUInt(uint(ln) * 8)
}

func typeSize(typ, prefix string) (uint, error) {
	sz, err := strconv.ParseUint(strings.TrimPrefix(typ, prefix), 10, 16)
	if err != nil || sz == 0 || sz > 257 {
		return 0, fmt.Errorf("%s: %w", typ, ErrUnsupportedType)
	}
	return uint(sz), nil
}
