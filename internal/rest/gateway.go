package rest

import (
	"context"
	"fmt"

	"github.com/calebreyn/pulsegate/internal/snowflake"
)

// GatewayInfo is the response of the gateway discovery endpoint.
type GatewayInfo struct {
	URL    string `json:"url"`
	Shards int    `json:"shards"` // Recommended shard count

	SessionStartLimit SessionStartLimit `json:"session_start_limit"`
}

// SessionStartLimit describes the identify budget granted to the
// account.
type SessionStartLimit struct {
	Total          int `json:"total"`
	Remaining      int `json:"remaining"`
	ResetAfter     int `json:"reset_after"`     // milliseconds
	MaxConcurrency int `json:"max_concurrency"` // identifies per spacing window
}

// GatewayBot fetches the gateway URL, the recommended shard count and
// the identify budget for this account.
func (c *Client) GatewayBot(ctx context.Context) (*GatewayInfo, error) {
	var info GatewayInfo
	if err := c.get(ctx, "gateway", "/gateway/bot", &info); err != nil {
		return nil, fmt.Errorf("gateway discovery: %w", err)
	}
	return &info, nil
}

// OutgoingMessage is the body of a message-create call.
type OutgoingMessage struct {
	Content string `json:"content"`
}

// CreatedMessage is the service's echo of a created message.
type CreatedMessage struct {
	ID        snowflake.ID `json:"id"`
	ChannelID snowflake.ID `json:"channel_id"`
	Content   string       `json:"content"`
}

// CreateMessage posts a message to a channel. Rate limiting is per
// channel route.
func (c *Client) CreateMessage(ctx context.Context, channelID snowflake.ID, content string) (*CreatedMessage, error) {
	route := "channels/" + channelID.String() + "/messages"
	path := "/channels/" + channelID.String() + "/messages"

	var created CreatedMessage
	if err := c.post(ctx, route, path, OutgoingMessage{Content: content}, &created); err != nil {
		return nil, fmt.Errorf("create message: %w", err)
	}
	return &created, nil
}
