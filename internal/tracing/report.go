package tracing

import (
	"encoding/hex"
	"fmt"
	"io"
	"math/big"
	"strings"

	"github.com/fatih/color"
	"github.com/xssnick/tonutils-go/address"
	"github.com/xssnick/tonutils-go/tlb"
	"github.com/xssnick/tonutils-go/tvm/cell"

	"github.com/xssnick/tonutils-tracer/internal/contracts"
)

var (
	green = color.New(color.FgGreen).SprintFunc()
	bold  = color.New(color.Bold).SprintFunc()
	red   = color.New(color.FgRed).SprintFunc()
)

// Render writes the human readable report of a failed branch.
func Render(w io.Writer, path []PathEntry) error {
	var sb strings.Builder
	for _, e := range path {
		renderEntry(&sb, e)
	}
	_, err := io.WriteString(w, sb.String())
	return err
}

func renderEntry(sb *strings.Builder, e PathEntry) {
	n := e.Node
	msg := n.Msg

	name := "undefinedContract"
	if n.Contract != nil {
		name = n.Contract.DisplayName()
	}

	method := "undefinedMethod"
	if n.Decoded != nil {
		method = n.Decoded.Name
	} else if n.Type == TypeBounce {
		method = "onBounce"
	}

	sb.WriteString("\t\t⬇\n\t\t⬇\n")
	fmt.Fprintf(sb, "\t#%d action out of %d\n", e.Index+1, e.Total)
	fmt.Fprintf(sb, "Addr: %s\n", green(msg.Dst))
	fmt.Fprintf(sb, "MsgId: %s\n", green(msg.ID))
	sb.WriteString("-----------------------------------------------------------------\n")

	if n.Type == TypeBounce {
		sb.WriteString("-> Bounced msg\n")
	}
	if n.Error != nil && n.Error.Ignored {
		fmt.Fprintf(sb, "-> Ignored %d code on %s phase\n", n.Error.Code, n.Error.Phase)
	}
	if n.Contract == nil {
		sb.WriteString("-> Contract not deployed/Not recognized because build artifacts not provided\n")
	}

	fmt.Fprintf(sb, "%s{value: %s, bounce: %t}%s\n", bold(name+"."+method), ton(msg.Value), msg.Bounce, renderParams(n.Decoded))

	if tx := msg.Transaction; tx != nil {
		if tx.StorageFeesCollected != nil {
			fmt.Fprintf(sb, "Storage fees: %s\n", ton(tx.StorageFeesCollected))
		}
		if tx.Compute != nil {
			fmt.Fprintf(sb, "Compute fees: %s\n", ton(tx.Compute.GasFees))
		}
		if tx.Action != nil {
			fmt.Fprintf(sb, "Action fees: %s\n", ton(tx.Action.TotalActionFees))
		}
		fmt.Fprintf(sb, "%s %s\n", bold("Total fees:"), ton(tx.TotalFees))
	}

	if n.failed() {
		line := fmt.Sprintf("!!! Reverted with %d error code on %s phase !!!", n.Error.Code, n.Error.Phase)
		if desc := DescribeCode(n.Error.Phase, n.Error.Code); desc != "" {
			line += " (" + desc + ")"
		}
		sb.WriteString(red(line) + "\n")
	}
}

func renderParams(d *contracts.DecodedBody) string {
	if d == nil || len(d.Params) == 0 {
		return "()"
	}

	var sb strings.Builder
	sb.WriteString("(\n")
	for _, p := range d.Params {
		fmt.Fprintf(&sb, "    %s: %s\n", p, formatValue(d.Values[p]))
	}
	sb.WriteString(")")
	return sb.String()
}

func formatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return "null"
	case *big.Int:
		if x == nil {
			return "null"
		}
		return x.String()
	case *address.Address:
		if x == nil {
			return "null"
		}
		return x.StringRaw()
	case *cell.Cell:
		if x == nil {
			return "null"
		}
		return hex.EncodeToString(x.Hash())
	case []byte:
		return hex.EncodeToString(x)
	case string:
		return x
	}
	return fmt.Sprint(v)
}

func ton(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return tlb.FromNanoTON(v).String()
}
