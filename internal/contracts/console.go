package contracts

import "fmt"

// ConsoleABI is the interface of the diagnostic console contract. Contracts call
// it to print debug lines while running on a local network.
var ConsoleABI = &ABI{
	ABIVersion: 2,
	Version:    "2.2",
	Header:     []string{"time"},
	Functions: []Function{
		{
			Name:    "log",
			Inputs:  []Param{{Name: "_log", Type: "string"}},
			Outputs: []Param{},
		},
	},
}

// BodyDecoder decodes a message body against a contract interface.
type BodyDecoder interface {
	DecodeBody(abi *ABI, body []byte, internal bool) (*DecodedBody, error)
}

func DecodeConsole(dec BodyDecoder, body []byte) (string, error) {
	res, err := dec.DecodeBody(ConsoleABI, body, true)
	if err != nil {
		return "", err
	}

	line, ok := res.Values["_log"].(string)
	if !ok {
		return "", &DecodeError{Reason: fmt.Sprintf("unexpected console method %s", res.Name)}
	}
	return line, nil
}
