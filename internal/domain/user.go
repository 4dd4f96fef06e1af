package domain

import "time"

type User struct {
	ID               string
	WalletAddress    string
	PhoneHash        *string // verified phone, hashed; links alternate identities
	CountryCode      string
	UTCOffsetMinutes int
	Platform         Platform
	ClientVersion    string
	DeviceToken      string
	CreatedAt        time.Time
}

// Location returns the fixed-offset timezone the user registered with.
// Cooldown midnights are computed in this zone.
func (u *User) Location() *time.Location {
	return time.FixedZone("user", u.UTCOffsetMinutes*60)
}
