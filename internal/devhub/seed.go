package devhub

import "github.com/devpool/chatsync/internal/domain"

// User is a console user known to the dev backend.
type User struct {
	ID          string
	DisplayName string
	Email       string
	Role        string
}

// Seed is the initial data set of a dev backend.
type Seed struct {
	Users []User
	// Tokens maps bearer tokens to user ids.
	Tokens map[string]string
	// Entities are the records messages can link to.
	Entities []domain.EntitySummary
	// DefaultConversation, when set, creates a default group containing every user.
	DefaultConversation string
}

// DefaultSeed is a small HR team with one token per user ("dev-<id>").
func DefaultSeed() Seed {
	users := []User{
		{ID: "u-alice", DisplayName: "Alice Martin", Email: "alice@example.com", Role: "Recruiter"},
		{ID: "u-bruno", DisplayName: "Bruno Costa", Email: "bruno@example.com", Role: "Hiring Manager"},
		{ID: "u-chloe", DisplayName: "Chloé Durand", Email: "chloe@example.com", Role: "HR Admin"},
		{ID: "u-dev", DisplayName: "Dev User", Email: "dev@example.com", Role: "Recruiter"},
	}
	tokens := make(map[string]string, len(users))
	for _, u := range users {
		tokens["dev-"+u.ID] = u.ID
	}

	return Seed{
		Users:  users,
		Tokens: tokens,
		Entities: []domain.EntitySummary{
			{Type: "candidate", ID: "cand-1001", Name: "Jane Doe"},
			{Type: "candidate", ID: "cand-1002", Name: "Ömer Yılmaz"},
			{Type: "candidate", ID: "cand-1003", Name: "Lucía Fernández"},
			{Type: "job", ID: "job-201", Name: "Senior Backend Engineer"},
			{Type: "job", ID: "job-202", Name: "Talent Partner"},
		},
		DefaultConversation: "General",
	}
}
