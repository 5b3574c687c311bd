package model

// Requester is the authenticated identity an operation runs on behalf of.
// Every ownership check compares against Requester.UserID; nothing reads the
// current user from ambient state.
type Requester struct {
	UserID int64
}
