// Command authorize runs the one-time Google consent flow and stores the
// resulting token where the bot reads it.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"calendar_bot/adapter/out/provider"
	"calendar_bot/config"
	"calendar_bot/pkg/logger"

	"github.com/joho/godotenv"
	"golang.org/x/oauth2"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load config: %v", err)
	}

	credentials := flag.String("credentials", cfg.GoogleCredentialsFile, "OAuth client file from the Google Cloud console")
	tokenFile := flag.String("token", cfg.GoogleTokenFile, "where to write the token")
	flag.Parse()

	oauthCfg, err := provider.LoadOAuthConfig(*credentials)
	if err != nil {
		logger.Fatal("%v", err)
	}

	authURL := oauthCfg.AuthCodeURL("state-token", oauth2.AccessTypeOffline, oauth2.ApprovalForce)
	fmt.Printf("Visit this URL to authorize:\n%s\n\nEnter the code from that page here: ", authURL)

	code, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		logger.Fatal("Failed to read authorization code: %v", err)
	}
	code = strings.TrimSpace(code)
	if code == "" {
		logger.Fatal("No authorization code entered")
	}

	tok, err := oauthCfg.Exchange(context.Background(), code)
	if err != nil {
		logger.Fatal("Failed to exchange authorization code: %v", err)
	}
	if tok.RefreshToken == "" {
		logger.Warn("Token has no refresh token; the bot will stop working when it expires")
	}

	if err := provider.SaveToken(*tokenFile, tok); err != nil {
		logger.Fatal("Failed to save token: %v", err)
	}
	fmt.Printf("Token saved to %s\n", *tokenFile)
}
