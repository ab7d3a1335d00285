package entity

// ApiUser identifies the caller of an admin API request, resolved from
// a bearer token.
type ApiUser struct {
	Name string `json:"name"`
}
