package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/rl1809/shop-stock/internal/adapter/auth"
)

func main() {
	userID := flag.String("user", "", "user id to put in the token subject")
	ttl := flag.Duration("ttl", 24*time.Hour, "token lifetime, 0 for no expiry")
	flag.Parse()

	secret := os.Getenv("STOCK_AUTH_SECRET")
	token, err := auth.IssueToken(secret, *userID, *ttl, time.Now())
	if err != nil {
		log.Fatalf("failed to issue token: %v", err)
	}
	fmt.Println(token)
}
