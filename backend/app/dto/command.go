package dto

import (
	"encoding/json"
	"fleetpush/backend/app/models"
)

type CreateCommandRequest struct {
	DeviceID string          `json:"device_id"`
	Type     string          `json:"type"`
	Payload  json.RawMessage `json:"payload,omitempty"`
}

type PullRequest struct {
	Max int `json:"max"`
}

type ResultRequest struct {
	Status  string  `json:"status"`
	Message *string `json:"message,omitempty"`
	Code    *int    `json:"code,omitempty"`
}

type Command struct {
	ID            uint            `json:"id"`
	DeviceID      string          `json:"device_id"`
	Type          string          `json:"type"`
	Payload       json.RawMessage `json:"payload"`
	Status        string          `json:"status"`
	CreatedAt     int64           `json:"created_at"`
	StartedAt     *int64          `json:"started_at,omitempty"`
	FinishedAt    *int64          `json:"finished_at,omitempty"`
	ResultMessage *string         `json:"result_message,omitempty"`
	ResultCode    *int            `json:"result_code,omitempty"`
}

func FromCommand(c models.Command) Command {
	out := Command{
		ID:            c.ID,
		DeviceID:      c.DeviceID,
		Type:          string(c.Type),
		Payload:       json.RawMessage(c.Payload),
		Status:        string(c.Status),
		CreatedAt:     c.CreatedAt.UnixMilli(),
		ResultMessage: c.ResultMessage,
		ResultCode:    c.ResultCode,
	}
	if len(out.Payload) == 0 {
		out.Payload = json.RawMessage("{}")
	}
	if c.StartedAt != nil {
		ms := c.StartedAt.UnixMilli()
		out.StartedAt = &ms
	}
	if c.FinishedAt != nil {
		ms := c.FinishedAt.UnixMilli()
		out.FinishedAt = &ms
	}
	return out
}

func FromCommands(cmds []models.Command) []Command {
	out := make([]Command, 0, len(cmds))
	for _, c := range cmds {
		out = append(out, FromCommand(c))
	}
	return out
}
