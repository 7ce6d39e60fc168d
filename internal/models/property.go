package models

// PropertyAgent is the embedded agent reference used by older property documents.
type PropertyAgent struct {
	ID   string `bson:"id,omitempty" json:"id,omitempty"`
	Name string `bson:"name,omitempty" json:"name,omitempty"`
}

// Property is a listed property. Read-only for this service.
// Stored in the `properties` collection.
type Property struct {
	ID       string         `bson:"_id" json:"id"`
	Title    string         `bson:"title" json:"title"`
	Price    float64        `bson:"price,omitempty" json:"price,omitempty"`
	Location string         `bson:"location,omitempty" json:"location,omitempty"`
	UserID   string         `bson:"userId,omitempty" json:"userId,omitempty"`
	AgentID  string         `bson:"agentId,omitempty" json:"agentId,omitempty"`
	Agent    *PropertyAgent `bson:"agent,omitempty" json:"agent,omitempty"`
}

// ownerFields lists where property documents have kept the owning agent
// over time, in priority order.
var ownerFields = []func(*Property) string{
	func(p *Property) string { return p.UserID },
	func(p *Property) string { return p.AgentID },
	func(p *Property) string {
		if p.Agent == nil {
			return ""
		}
		return p.Agent.ID
	},
}

// OwnerID returns the id of the agent owning the property, or "" if unknown.
func (p *Property) OwnerID() string {
	for _, field := range ownerFields {
		if id := field(p); id != "" {
			return id
		}
	}
	return ""
}

// Summary returns the display summary embedded in inquiries.
func (p *Property) Summary() *PropertySummary {
	return &PropertySummary{ID: p.ID, Title: p.Title, Price: p.Price, Location: p.Location}
}
