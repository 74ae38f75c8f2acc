package dto

import (
	"time"

	"github.com/spec-kit/livechat-service/internal/domain"
)

// TriggerRequest is the create/update payload for trigger rules.
type TriggerRequest struct {
	Name         string                    `json:"name"`
	Identifier   string                    `json:"identifier"`
	Action       domain.TriggerAction      `json:"action"`
	Message      string                    `json:"message"`
	Conditions   []domain.TriggerCondition `json:"conditions"`
	OnlyIfOnline bool                      `json:"only_if_online"`
	ExecuteOnce  bool                      `json:"execute_once"`
	DelaySeconds int                       `json:"delay_seconds"`
}

// TriggerResponse is the dashboard view of a trigger rule.
type TriggerResponse struct {
	ID           string                    `json:"id"`
	Name         string                    `json:"name"`
	Identifier   string                    `json:"identifier"`
	Action       domain.TriggerAction      `json:"action"`
	Message      string                    `json:"message"`
	Conditions   []domain.TriggerCondition `json:"conditions"`
	OnlyIfOnline bool                      `json:"only_if_online"`
	ExecuteOnce  bool                      `json:"execute_once"`
	DelaySeconds int                       `json:"delay_seconds"`
	CreatedAt    time.Time                 `json:"created_at"`
	UpdatedAt    time.Time                 `json:"updated_at"`
}

// WidgetTriggerResponse is the reduced trigger view the widget script
// evaluates client-side.
type WidgetTriggerResponse struct {
	Identifier   string                    `json:"identifier"`
	Action       domain.TriggerAction      `json:"action"`
	Conditions   []domain.TriggerCondition `json:"conditions"`
	OnlyIfOnline bool                      `json:"only_if_online"`
	DelaySeconds int                       `json:"delay_seconds"`
}
