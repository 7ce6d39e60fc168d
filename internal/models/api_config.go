package models

// RateLimitConfig holds token bucket parameters.
type RateLimitConfig struct {
	BucketSize      int `bson:"bucketSize" json:"bucketSize"`
	TokenRefillRate int `bson:"tokenRefillRate" json:"tokenRefillRate"` // Tokens per second
}

// APIEndpointConfig overrides the default rate limits for one route.
// Stored in the `api_endpoints_config` collection, keyed by route path
// (e.g. "/v1/conversations/:id/messages").
type APIEndpointConfig struct {
	Endpoint      string           `bson:"_id" json:"endpoint"`
	RateLimitSoft *RateLimitConfig `bson:"rateLimitSoft,omitempty" json:"rateLimitSoft,omitempty"`
	RateLimitHard *RateLimitConfig `bson:"rateLimitHard,omitempty" json:"rateLimitHard,omitempty"`
}

// Setting is a runtime configuration entry. Stored in the `configuration`
// collection keyed by Key.
type Setting struct {
	Key    string      `bson:"_id" json:"key"`
	Value  interface{} `bson:"value" json:"value"`
	Public bool        `bson:"public" json:"public"`
}
