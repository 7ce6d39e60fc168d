package models

// InquiryNotice is what an agent is told about a newly stored inquiry.
type InquiryNotice struct {
	InquiryID     string `json:"inquiry_id"`
	AgentEmail    string `json:"agent_email"`
	AgentName     string `json:"agent_name,omitempty"`
	PropertyTitle string `json:"property_title"`
	ClientName    string `json:"client_name,omitempty"`
	Message       string `json:"message,omitempty"`
}
