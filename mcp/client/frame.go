package client

import (
	"encoding/json"

	"github.com/archidex/archidex/mcp/types"
)

type frameKind int

const (
	// frameNoise is anything the listener should ignore: keep-alives,
	// comments, payloads that fail to parse as JSON.
	frameNoise frameKind = iota
	// frameEndpoint is a bare "endpoint" named event whose data is the raw
	// write endpoint path/URL.
	frameEndpoint
	// frameMessage is a JSON payload. It may carry a JSON-RPC response and,
	// for servers that embed discovery in a message, an "endpoint" member.
	frameMessage
)

// frame is the closed set of payload shapes the listener recognizes,
// resolved once when the event terminator is seen.
type frame struct {
	kind     frameKind
	endpoint string
	msg      *types.JSONRPCMessage
}

func parseFrame(event, data string) frame {
	if data == "" {
		return frame{kind: frameNoise}
	}
	if event == "endpoint" {
		return frame{kind: frameEndpoint, endpoint: data}
	}
	var env struct {
		types.JSONRPCMessage
		Endpoint string `json:"endpoint"`
	}
	if err := json.Unmarshal([]byte(data), &env); err != nil {
		return frame{kind: frameNoise}
	}
	return frame{kind: frameMessage, endpoint: env.Endpoint, msg: &env.JSONRPCMessage}
}
