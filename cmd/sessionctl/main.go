// sessionctl mints and revokes bearer sessions in the shared redis store. The
// API itself never issues sessions; the identity service does, and this tool
// does the same job from the command line for local development and support.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/gofrs/uuid"
	"github.com/vasiliy-maslov/attar-shop/internal/auth"
)

func main() {
	addr := flag.String("redis", "localhost:6379", "redis address")
	user := flag.String("user", "", "user UUID to mint a session for")
	role := flag.String("role", auth.RoleCustomer, "session role (customer or admin)")
	ttl := flag.Duration("ttl", 24*time.Hour, "session lifetime")
	revoke := flag.String("revoke", "", "token to revoke instead of minting")
	flag.Parse()

	sessions := auth.NewRedisSessions(*addr)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if *revoke != "" {
		if err := sessions.Revoke(ctx, *revoke); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		return
	}

	userID, err := uuid.FromString(*user)
	if err != nil {
		fmt.Fprintln(os.Stderr, "sessionctl: -user must be a valid UUID")
		os.Exit(1)
	}
	if *role != auth.RoleCustomer && *role != auth.RoleAdmin {
		fmt.Fprintln(os.Stderr, "sessionctl: -role must be customer or admin")
		os.Exit(1)
	}

	token, err := sessions.Create(ctx, auth.Identity{UserID: userID, Role: *role}, *ttl)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	fmt.Println(token)
}
