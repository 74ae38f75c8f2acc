package domain

import "time"

// TriggerAction enumerates what the widget does when a trigger fires.
type TriggerAction string

const (
	TriggerActionShowMessage TriggerAction = "show_message"
	TriggerActionOpenChatbox TriggerAction = "open_chatbox"
)

// TriggerConditionType enumerates the behavioral events a condition matches.
type TriggerConditionType string

const (
	ConditionOnLeaveIntent TriggerConditionType = "on_leave_intent"
	ConditionOnClickLink   TriggerConditionType = "on_click_link"
	ConditionOnPage        TriggerConditionType = "on_page"
	ConditionAfterDelay    TriggerConditionType = "after_delay"
)

// TriggerCondition is one {type, value} pair of a trigger's ordered
// condition list.
type TriggerCondition struct {
	Type  TriggerConditionType `json:"type"`
	Value string               `json:"value"`
}

// Trigger is a tenant-configured rule injecting an automated message when
// the widget reports a matching behavioral event. The identifier is globally
// unique and acts as the stable external reference for the widget script.
// Condition evaluation happens client-side; the engine only handles the
// firing consequence.
type Trigger struct {
	ID           string
	BusinessID   string
	Name         string
	Identifier   string
	Action       TriggerAction
	Message      string
	Conditions   []TriggerCondition
	OnlyIfOnline bool
	ExecuteOnce  bool
	DelaySeconds int
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
