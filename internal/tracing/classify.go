package tracing

type TraceType string

const (
	TypeUnknown        TraceType = ""
	TypeDeploy         TraceType = "deploy"
	TypeFunctionCall   TraceType = "function_call"
	TypeFunctionReturn TraceType = "function_return"
	TypeEvent          TraceType = "event"
	TypeEventOrReturn  TraceType = "event_or_return"
	TypeBounce         TraceType = "bounce"
	TypeTransfer       TraceType = "transfer"
)

// classify detects the role of a message. parent is the message whose
// transaction produced msg, nil for the root.
func classify(msg *Message, parent *Message) TraceType {
	switch msg.Kind {
	case KindInternal:
		switch {
		case msg.CodeHash != "":
			return TypeDeploy
		case msg.Bounced:
			return TypeBounce
		case len(msg.Body) == 0:
			return TypeTransfer
		}
		return TypeFunctionCall
	case KindExternalIn:
		if msg.CodeHash != "" {
			return TypeDeploy
		}
		return TypeFunctionCall
	case KindExternalOut:
		// answer of an external call or an event, decoding decides
		if parent != nil && parent.Kind == KindExternalIn {
			return TypeEventOrReturn
		}
		return TypeEvent
	}
	return TypeUnknown
}
