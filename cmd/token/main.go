// Command token prints a signed access token for local testing. Tokens are
// normally issued by the identity service that shares JWT_SECRET.
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/rental-settlement/internal/utils"
)

func main() {
	_ = godotenv.Load()

	user := flag.String("user", "", "user id placed in the sub claim")
	role := flag.String("role", "USER", "USER or ADMIN")
	ttl := flag.Duration("ttl", time.Hour, "token lifetime")
	flag.Parse()

	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		logrus.Fatal("JWT_SECRET is not set")
	}
	tok, err := utils.NewAccessToken(secret, *user, strings.ToUpper(*role), *ttl)
	if err != nil {
		logrus.WithError(err).Fatal("could not sign token")
	}
	fmt.Println(tok.Token)
}
