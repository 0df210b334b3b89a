package main

import (
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/xenking/delivery-orders/internal/domain/auth"
	"github.com/xenking/delivery-orders/internal/handler"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint a bearer token for local testing",
	RunE:  runToken,
}

func init() {
	f := tokenCmd.Flags()
	f.String("subject", "", "User id carried in the token")
	f.String("role", string(auth.RoleUser), "Role: user, restaurantOwner or admin")
	f.StringSlice("restaurants", nil, "Owned restaurant ids for restaurantOwner tokens")
	f.Duration("ttl", time.Hour, "Token lifetime")
	f.String("jwt-secret", "", "HS256 secret (ORDERS_JWT_SECRET)")
	f.String("issuer", "", "Token issuer")

	_ = viper.BindPFlag("jwt-secret", f.Lookup("jwt-secret"))
	_ = viper.BindPFlag("issuer", f.Lookup("issuer"))
	_ = viper.BindEnv("jwt-secret", "ORDERS_JWT_SECRET", "ORDERS_AUTH_JWT_SECRET")
	_ = viper.BindEnv("issuer", "ORDERS_ISSUER", "ORDERS_AUTH_ISSUER")
}

func runToken(cmd *cobra.Command, _ []string) error {
	f := cmd.Flags()
	subject, _ := f.GetString("subject")
	role, _ := f.GetString("role")
	restaurants, _ := f.GetStringSlice("restaurants")
	ttl, _ := f.GetDuration("ttl")

	p := auth.Principal{UserID: subject, Role: auth.Role(role), OwnedRestaurantIDs: restaurants}
	if err := checkPrincipal(p); err != nil {
		return err
	}

	v, err := handler.NewTokenVerifier([]byte(viper.GetString("jwt-secret")), viper.GetString("issuer"))
	if err != nil {
		return err
	}
	token, err := v.Issue(p, ttl)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), token)
	return nil
}

func checkPrincipal(p auth.Principal) error {
	switch {
	case p.UserID == "":
		return errors.New("subject is required")
	case !p.Role.Valid():
		return errors.Errorf("unknown role %q", p.Role)
	case p.IsOwner() && len(p.OwnedRestaurantIDs) == 0:
		return errors.New("restaurantOwner tokens need at least one restaurant")
	}
	return nil
}
