package model

// Identity is the subject record resolved from the remote inventory's
// user directory during sign-in. The kiosk never stores credentials;
// the employee number scanned at the terminal is exchanged for this
// record and then forgotten.
type Identity struct {
	ID          uint64 `json:"id"`
	Name        string `json:"name"`
	EmployeeNum string `json:"employee_num"`
	Email       string `json:"email,omitempty"`
	VIP         bool   `json:"vip"`
}
