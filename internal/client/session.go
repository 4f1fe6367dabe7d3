package client

import "errors"

var ErrSignedOut = errors.New("client: session is signed out")

// Session is the identity every API call and subscription is made with.
// It is handed around explicitly rather than kept in a package-level global.
type Session struct {
	Token    string
	UserID   int64
	Username string
}

func (s *Session) Valid() bool {
	return s != nil && s.Token != "" && s.UserID > 0
}

// Logout clears the credentials; later calls made with this session fail with ErrSignedOut.
func (s *Session) Logout() {
	s.Token = ""
	s.UserID = 0
	s.Username = ""
}
