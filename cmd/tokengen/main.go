// Command tokengen mints an HS256 admin token for local development.
//
//	JWT_SECRET=... go run ./cmd/tokengen -sub ops -ttl 2h
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/iliyamo/furniture-reservation/internal/middleware"
	"github.com/iliyamo/furniture-reservation/internal/utils"
)

func main() {
	_ = godotenv.Load()

	sub := flag.String("sub", "admin", "token subject")
	role := flag.String("role", middleware.RoleAdmin, "role claim")
	ttl := flag.Duration("ttl", time.Hour, "token lifetime")
	flag.Parse()

	tok, err := utils.NewAccessToken(os.Getenv("JWT_SECRET"), *sub, *role, *ttl)
	if err != nil {
		fmt.Fprintln(os.Stderr, "tokengen:", err)
		os.Exit(1)
	}
	fmt.Println(tok.Token)
	fmt.Fprintln(os.Stderr, "expires", tok.Exp.Format(time.RFC3339))
}
