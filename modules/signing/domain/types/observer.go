package types

// Observer is a party invited to follow a contract without signing it.
type Observer struct {
	Name    string `json:"name"`
	Contact string `json:"contact"`
}
