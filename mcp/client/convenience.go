package client

import (
	"context"
	"encoding/json"

	"github.com/cockroachdb/errors"

	"github.com/archidex/archidex/mcp/types"
)

// ProtocolVersion is the protocol revision sent during the initialize handshake.
const ProtocolVersion = "2024-05-01"

// Initialize performs the protocol handshake, announcing the client identity
// and (empty) capabilities. Returns the server's raw initialize result.
func (c *Client) Initialize(ctx context.Context) (json.RawMessage, error) {
	return c.Call(ctx, "initialize", types.InitializeParams{
		ProtocolVersion: ProtocolVersion,
		Capabilities:    map[string]interface{}{},
		Client:          c.info,
	}, 0)
}

// ListTools returns the remote tool catalog.
func (c *Client) ListTools(ctx context.Context) ([]types.Tool, error) {
	result, err := c.Call(ctx, "tools/list", nil, 0)
	if err != nil {
		return nil, err
	}
	var listed types.ListToolsResult
	if err := json.Unmarshal(result, &listed); err != nil {
		return nil, errors.Wrap(err, "mcp: decoding tool catalog")
	}
	return listed.Tools, nil
}

// CallTool invokes a remote tool and returns its content blocks.
func (c *Client) CallTool(ctx context.Context, name string, arguments map[string]interface{}) ([]types.Content, error) {
	if arguments == nil {
		arguments = map[string]interface{}{}
	}
	result, err := c.Call(ctx, "tools/call", types.CallToolParams{Name: name, Arguments: arguments}, 0)
	if err != nil {
		return nil, err
	}
	var called types.CallToolResult
	if err := json.Unmarshal(result, &called); err != nil {
		return nil, errors.Wrapf(err, "mcp: decoding %s result", name)
	}
	return called.Content, nil
}

// CallToolJSON invokes a remote tool and returns the payload of the first
// structured content block. When the result carries no structured block the
// whole content list is returned marshaled as-is.
func (c *Client) CallToolJSON(ctx context.Context, name string, arguments map[string]interface{}) (json.RawMessage, error) {
	content, err := c.CallTool(ctx, name, arguments)
	if err != nil {
		return nil, err
	}
	for _, block := range content {
		if block.Type == types.ContentTypeJSON && len(block.Data) > 0 {
			return block.Data, nil
		}
	}
	return json.Marshal(content)
}
