package models

import "time"

// InquiryView is the dashboard payload for an agent's inquiries. Stale is set
// when the list was served from cache (or empty) because the live read failed.
type InquiryView struct {
	AgentID     string    `json:"agentId"`
	Inquiries   []Inquiry `json:"inquiries"`
	Stale       bool      `json:"stale"`
	GeneratedAt time.Time `json:"generatedAt"`
}
