package tracing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	extIn := &Message{Kind: KindExternalIn}
	internal := &Message{Kind: KindInternal}

	tests := []struct {
		name   string
		msg    *Message
		parent *Message
		want   TraceType
	}{
		{"internal deploy", &Message{Kind: KindInternal, CodeHash: "aa", Bounced: true, Body: []byte{1}}, nil, TypeDeploy},
		{"internal bounced", &Message{Kind: KindInternal, Bounced: true, Body: []byte{1}}, nil, TypeBounce},
		{"internal empty body", &Message{Kind: KindInternal}, nil, TypeTransfer},
		{"internal call", &Message{Kind: KindInternal, Body: []byte{1}}, nil, TypeFunctionCall},
		{"external deploy", &Message{Kind: KindExternalIn, CodeHash: "aa"}, nil, TypeDeploy},
		{"external call", &Message{Kind: KindExternalIn, Body: []byte{1}}, nil, TypeFunctionCall},
		{"external out of external call", &Message{Kind: KindExternalOut}, extIn, TypeEventOrReturn},
		{"external out of internal call", &Message{Kind: KindExternalOut}, internal, TypeEvent},
		{"external out root", &Message{Kind: KindExternalOut}, nil, TypeEvent},
		{"unknown kind", &Message{Kind: MsgKind(7)}, nil, TypeUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, classify(tt.msg, tt.parent))
			// pure function of the inputs
			assert.Equal(t, tt.want, classify(tt.msg, tt.parent))
		})
	}
}

func TestEvaluate(t *testing.T) {
	skippedTx := func(code int32, aborted bool) *Transaction {
		return &Transaction{
			Compute: &ComputePhase{Type: ComputeTypeSkipped, ExitCode: code},
			Aborted: aborted,
		}
	}
	actionOK := okTx()
	actionOK.Action.ResultCode = 5

	tests := []struct {
		name    string
		msg     *Message
		allowed AllowedCodes
		want    *PhaseError
	}{
		{
			name: "not delivered",
			msg:  internalMsg("m", "0:a", "0:b", "x", nil),
		},
		{
			name: "success",
			msg:  internalMsg("m", "0:a", "0:b", "x", okTx()),
		},
		{
			name: "compute failed",
			msg:  internalMsg("m", "0:a", "0:b", "x", computeFailedTx(50)),
			want: &PhaseError{Phase: PhaseCompute, Code: 50},
		},
		{
			name:    "compute failed globally allowed",
			msg:     internalMsg("m", "0:a", "0:b", "x", computeFailedTx(50)),
			allowed: AllowedCodes{}.WithCompute(50),
			want:    &PhaseError{Phase: PhaseCompute, Code: 50, Ignored: true},
		},
		{
			name:    "compute failed allowed for destination",
			msg:     internalMsg("m", "0:a", "0:b", "x", computeFailedTx(50)),
			allowed: AllowedCodes{}.WithAddressCodes("0:b", PhaseCodes{Compute: []int32{50}}),
			want:    &PhaseError{Phase: PhaseCompute, Code: 50, Ignored: true},
		},
		{
			name:    "compute failed allowed for another address",
			msg:     internalMsg("m", "0:a", "0:b", "x", computeFailedTx(50)),
			allowed: AllowedCodes{}.WithAddressCodes("0:a", PhaseCodes{Compute: []int32{50}}),
			want:    &PhaseError{Phase: PhaseCompute, Code: 50},
		},
		{
			name:    "compute code allowed for action phase only",
			msg:     internalMsg("m", "0:a", "0:b", "x", computeFailedTx(50)),
			allowed: AllowedCodes{}.WithAction(50),
			want:    &PhaseError{Phase: PhaseCompute, Code: 50},
		},
		{
			name: "skipped compute is not checked",
			msg:  internalMsg("m", "0:a", "0:b", "", skippedTx(5, false)),
		},
		{
			name: "skipped compute of aborted transaction",
			msg:  internalMsg("m", "0:a", "0:b", "", skippedTx(5, true)),
			want: &PhaseError{Phase: PhaseCompute, Code: 5},
		},
		{
			name: "action failed",
			msg:  internalMsg("m", "0:a", "0:b", "x", actionFailedTx(37)),
			want: &PhaseError{Phase: PhaseAction, Code: 37},
		},
		{
			name:    "action failed allowed",
			msg:     internalMsg("m", "0:a", "0:b", "x", actionFailedTx(37)),
			allowed: AllowedCodes{}.WithAction(37),
			want:    &PhaseError{Phase: PhaseAction, Code: 37, Ignored: true},
		},
		{
			name: "successful action phase is not checked",
			msg:  internalMsg("m", "0:a", "0:b", "x", actionOK),
		},
		{
			name: "console never fails",
			msg:  internalMsg("m", "0:a", DefaultConsoleAddress, "x", computeFailedTx(50)),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := evaluate(tt.msg, tt.allowed, DefaultConsoleAddress)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, got, evaluate(tt.msg, tt.allowed, DefaultConsoleAddress))
		})
	}
}

func TestAllowedCodesMonotonic(t *testing.T) {
	msgs := []*Message{
		internalMsg("c", "0:a", "0:b", "x", computeFailedTx(50)),
		internalMsg("a", "0:a", "0:c", "x", actionFailedTx(37)),
	}
	steps := []func(AllowedCodes) AllowedCodes{
		func(a AllowedCodes) AllowedCodes { return a.WithCompute(1, 2) },
		func(a AllowedCodes) AllowedCodes { return a.WithAddressCodes("0:c", PhaseCodes{Action: []int32{37}}) },
		func(a AllowedCodes) AllowedCodes { return a.WithAction(50) },
		func(a AllowedCodes) AllowedCodes { return a.WithCompute(50) },
		func(a AllowedCodes) AllowedCodes { return a.Merge(AllowedCodes{}.WithCompute(3)) },
	}

	for _, msg := range msgs {
		allowed := AllowedCodes{}
		ignored := evaluate(msg, allowed, DefaultConsoleAddress).Ignored
		for _, step := range steps {
			allowed = step(allowed)
			e := evaluate(msg, allowed, DefaultConsoleAddress)
			require.NotNil(t, e)
			if ignored {
				assert.True(t, e.Ignored, "code of %s became unignored", msg.ID)
			}
			ignored = e.Ignored
		}
		assert.True(t, ignored, msg.ID)
	}
}

func TestAllowedCodesImmutable(t *testing.T) {
	base := AllowedCodes{}.WithCompute(50).WithAddressCodes("0:a", PhaseCodes{Action: []int32{37}})

	extended := base.WithCompute(51).WithAddressCodes("0:a", PhaseCodes{Action: []int32{38}})
	assert.False(t, base.Allows(PhaseCompute, "0:x", 51))
	assert.False(t, base.Allows(PhaseAction, "0:a", 38))
	assert.True(t, extended.Allows(PhaseCompute, "0:x", 51))
	assert.True(t, extended.Allows(PhaseAction, "0:a", 38))

	reduced := extended.WithoutCodes(PhaseCodes{Compute: []int32{50}}).
		WithoutAddressCodes("0:a", PhaseCodes{Action: []int32{37, 38}})
	assert.False(t, reduced.Allows(PhaseCompute, "0:x", 50))
	assert.True(t, reduced.Allows(PhaseCompute, "0:x", 51))
	assert.False(t, reduced.Allows(PhaseAction, "0:a", 37))
	assert.NotContains(t, reduced.Addresses, "0:a")

	assert.True(t, extended.Allows(PhaseCompute, "0:x", 50))
	assert.True(t, extended.Allows(PhaseAction, "0:a", 37))
}

func TestAllowedCodesMerge(t *testing.T) {
	a := AllowedCodes{}.WithCompute(50).WithAddressCodes("0:a", PhaseCodes{Compute: []int32{60}})
	b := AllowedCodes{}.WithAction(37).WithAddressCodes("0:a", PhaseCodes{Action: []int32{38}})

	m := a.Merge(b)
	assert.True(t, m.Allows(PhaseCompute, "0:z", 50))
	assert.True(t, m.Allows(PhaseAction, "0:z", 37))
	assert.True(t, m.Allows(PhaseCompute, "0:a", 60))
	assert.True(t, m.Allows(PhaseAction, "0:a", 38))
	assert.False(t, m.Allows(PhaseCompute, "0:z", 60))
	assert.Equal(t, []int32{50}, m.Global.Compute)

	// duplicates are not repeated
	assert.Equal(t, []int32{50}, m.Merge(a).Global.Compute)
}

func TestModeFromFlags(t *testing.T) {
	tests := []struct {
		force, disable, noWait bool
		want                   Mode
		wantErr                bool
	}{
		{want: ModeDefault},
		{force: true, want: ModeForce},
		{disable: true, want: ModeDisabled},
		{noWait: true, want: ModeNoWait},
		{disable: true, noWait: true, want: ModeNoWait},
		{force: true, disable: true, wantErr: true},
		{force: true, noWait: true, wantErr: true},
	}

	for _, tt := range tests {
		mode, err := ModeFromFlags(tt.force, tt.disable, tt.noWait)
		if tt.wantErr {
			var cfgErr *ConfigurationError
			require.ErrorAs(t, err, &cfgErr)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tt.want, mode)
	}
}

func TestDescribeCode(t *testing.T) {
	assert.Equal(t, "Inbound message has wrong function id", DescribeCode(PhaseCompute, ExitCodeWrongFunctionID))
	assert.Equal(t, "Not enough Toncoin", DescribeCode(PhaseAction, 37))
	assert.Empty(t, DescribeCode(PhaseCompute, 1234))
}
