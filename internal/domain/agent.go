package domain

import "time"

// Agent is a human operator replying on behalf of a business.
type Agent struct {
	ID         string
	BusinessID string
	Name       string
	Email      string
	AvatarURL  *string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// AgentProfile is the public subset of an agent attached to outgoing
// message payloads. Presentation data only, never persisted on messages.
type AgentProfile struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	AvatarURL *string `json:"avatar_url,omitempty"`
}

// Profile returns the public view of the agent.
func (a *Agent) Profile() AgentProfile {
	return AgentProfile{ID: a.ID, Name: a.Name, AvatarURL: a.AvatarURL}
}
