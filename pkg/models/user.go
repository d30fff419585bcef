package models

// User is the directory collaborator's view of a person: identity, mailbox
// and the manager link the assignee resolver walks.
type User struct {
	ID        string  `json:"id" db:"id"`
	Name      string  `json:"name" db:"name"`
	Email     string  `json:"email" db:"email"`
	Role      string  `json:"role,omitempty" db:"role"`
	ManagerID *string `json:"manager_id,omitempty" db:"manager_id"`
}
