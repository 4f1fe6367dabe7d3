package user

import "time"

type User struct {
	ID        int64     `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	Password  string    `json:"-"`
	Name      string    `json:"name"`
	Bio       string    `json:"bio"`
	Year      int       `json:"year"`
	Major     string    `json:"major"`
	AvatarURL string    `json:"avatarUrl"`
	CreatedAt time.Time `json:"createdAt"`
}

// PublicProfile is the part of a user other students may see.
type PublicProfile struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	Username  string `json:"username"`
	AvatarURL string `json:"avatarUrl"`
	Major     string `json:"major"`
	Year      int    `json:"year"`
	Bio       string `json:"bio"`
}

func (u *User) Profile() PublicProfile {
	return PublicProfile{
		ID:        u.ID,
		Name:      u.Name,
		Username:  u.Username,
		AvatarURL: u.AvatarURL,
		Major:     u.Major,
		Year:      u.Year,
		Bio:       u.Bio,
	}
}

// DisplayName falls back to the username for accounts that never set a name.
func (p PublicProfile) DisplayName() string {
	if p.Name != "" {
		return p.Name
	}
	return p.Username
}

type RegisterRequest struct {
	Username  string `json:"username"`
	Email     string `json:"email"`
	Password  string `json:"password"`
	Name      string `json:"name"`
	Bio       string `json:"bio"`
	Year      int    `json:"year"`
	Major     string `json:"major"`
	AvatarURL string `json:"avatarUrl"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	ID          int64  `json:"id"`
	Username    string `json:"username"`
}
