package refreshtoken

import (
	"time"

	"github.com/tech-arch1tect/tokenchain/models"
)

// TokenPair is the credential set handed to a client after authentication or rotation.
type TokenPair struct {
	User           *models.User
	AccessToken    string
	RefreshToken   string
	RefreshExpires time.Time
}
