package domain

// UserSummary is the compact user shape returned by user search and the
// online-users snapshot.
type UserSummary struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	Email       string `json:"email,omitempty"`
	Role        string `json:"role,omitempty"`
	IsOnline    bool   `json:"isOnline"`
}

// EntitySummary is a business record (e.g. a candidate profile) that a
// message can link to.
type EntitySummary struct {
	Type string `json:"type"`
	ID   string `json:"id"`
	Name string `json:"name"`
}

// AsLink converts the search result into the reference carried on a message.
func (e EntitySummary) AsLink() *LinkedEntity {
	return &LinkedEntity{Type: e.Type, ID: e.ID, Name: e.Name}
}
