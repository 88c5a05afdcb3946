package tracing

// ExitCodeWrongFunctionID is thrown by contracts which do not know the selector
// of an inbound call, such a body can't be decoded with the contract interface.
const ExitCodeWrongFunctionID int32 = 60

var computeExitCodes = map[int32]string{
	2:  "Stack underflow",
	3:  "Stack overflow",
	4:  "Integer overflow",
	5:  "Integer out of expected range",
	6:  "Invalid opcode",
	7:  "Type check error",
	8:  "Cell overflow",
	9:  "Cell underflow",
	10: "Dictionary error",
	11: "'Unknown' error",
	12: "Fatal error",
	13: "Out of gas error",
	40: "External inbound message has an invalid signature",
	50: "Array index or index of mapping is out of range",
	51: "Contract's constructor has already been called",
	52: "Replay protection exception",
	57: "External inbound message is expired",
	60: "Inbound message has wrong function id",
	61: "Deploying StateInit has no public key in data field",
	72: "Public function was called before constructor",

	-14: "Out of gas error",
}

var actionResultCodes = map[int32]string{
	32: "Action list is invalid",
	33: "Action list is too long",
	34: "Action is invalid or not supported",
	35: "Invalid source address in outbound message",
	36: "Invalid destination address in outbound message",
	37: "Not enough Toncoin",
	38: "Not enough extra currencies",
	39: "Outbound message does not fit into a cell after rewriting",
	40: "Cannot process a message",
	41: "Library reference is null during library change action",
	42: "Library change action error",
	43: "Exceeded the maximum number of cells in the library or the maximum depth of the Merkle tree",
	50: "Account state size exceeded limits",
}

// DescribeCode gives a short human readable meaning of well known codes, empty if unknown.
func DescribeCode(phase Phase, code int32) string {
	if phase == PhaseAction {
		return actionResultCodes[code]
	}
	return computeExitCodes[code]
}
