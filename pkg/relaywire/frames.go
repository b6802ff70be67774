// Package relaywire defines the JSON frames exchanged with a chat relay over a
// websocket. Inbound frames carry user activity; outbound frames are bot output.
package relaywire

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

const (
	TypeCommand = "command"
	TypePress   = "press"

	TypeSend  = "send"
	TypeEdit  = "edit"
	TypeAck   = "ack"
	TypeImage = "image"

	FormatPlain = "plain"
	FormatMono  = "mono"
)

type Member struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// Inbound is sent by the relay. Commands name a Target; presses carry PressID,
// Data and the MessageID of the pressed message.
type Inbound struct {
	Type      string  `json:"type"`
	Room      string  `json:"room"`
	User      Member  `json:"user"`
	Command   string  `json:"command,omitempty"`
	Target    *Member `json:"target,omitempty"`
	PressID   string  `json:"press_id,omitempty"`
	Data      string  `json:"data,omitempty"`
	MessageID string  `json:"message_id,omitempty"`
}

type Button struct {
	Label string `json:"label"`
	Data  string `json:"data"`
}

// Outbound is sent by the bot. MessageID is chosen by the bot for send/image
// frames and names the edited message for edit frames.
type Outbound struct {
	Type      string     `json:"type"`
	Room      string     `json:"room,omitempty"`
	MessageID string     `json:"message_id,omitempty"`
	Text      string     `json:"text,omitempty"`
	Format    string     `json:"format,omitempty"`
	Buttons   [][]Button `json:"buttons,omitempty"`
	PressID   string     `json:"press_id,omitempty"`
	Image     string     `json:"image,omitempty"` // base64 PNG
}

var ErrInvalidFrame = errors.New("relaywire: invalid frame")

// DecodeInbound parses and validates one inbound frame.
func DecodeInbound(raw []byte) (Inbound, error) {
	var in Inbound
	if err := json.Unmarshal(raw, &in); err != nil {
		return Inbound{}, fmt.Errorf("%w: %v", ErrInvalidFrame, err)
	}
	return in, in.Validate()
}

func (in Inbound) Validate() error {
	if strings.TrimSpace(in.Room) == "" || strings.TrimSpace(in.User.ID) == "" {
		return fmt.Errorf("%w: room and user.id are required", ErrInvalidFrame)
	}
	switch in.Type {
	case TypeCommand:
		if in.Target != nil && strings.TrimSpace(in.Target.ID) == "" {
			return fmt.Errorf("%w: target.id is empty", ErrInvalidFrame)
		}
	case TypePress:
		if in.PressID == "" || in.Data == "" {
			return fmt.Errorf("%w: press_id and data are required", ErrInvalidFrame)
		}
	default:
		return fmt.Errorf("%w: unknown type %q", ErrInvalidFrame, in.Type)
	}
	return nil
}
