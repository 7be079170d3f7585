package main

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/MarkoPoloResearchLab/donateboard/internal/webapi"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	flagListenAddr       = "listen-addr"
	flagAllowedOrigins   = "allowed-origins"
	flagAppBaseURL       = "app-base-url"
	flagStoreDriver      = "store-driver"
	flagStoreDSN         = "store-dsn"
	flagLeaderboardLimit = "leaderboard-limit"
	flagMockDonations    = "mock-donations"
	flagProviderTimeout  = "provider-timeout"
	flagPayPalBaseURL    = "paypal-base-url"
	flagPayPalClientID   = "paypal-client-id"
	flagPayPalSecret     = "paypal-secret"
	flagPayPalWebhookID  = "paypal-webhook-id"
	flagPayPalBrandName  = "paypal-brand-name"
	flagBTCPayBaseURL    = "btcpay-base-url"
	flagBTCPayStoreID    = "btcpay-store-id"
	flagBTCPayAPIKey     = "btcpay-api-key"
	envPrefix            = "DONATEBOARD"
)

func main() {
	// Missing .env is fine; real deployments configure through the environment.
	_ = godotenv.Load()
	rootCmd := newRootCommand()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "donateboardd: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cfg := webapi.Config{}
	cmd := &cobra.Command{
		Use:           "donateboardd",
		Short:         "Donation leaderboard service",
		SilenceUsage:  true,
		SilenceErrors: true,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return loadConfig(cmd, &cfg)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return webapi.Run(ctx, cfg)
		},
	}

	cmd.Flags().String(flagListenAddr, "", "HTTP listen address")
	cmd.Flags().String(flagAllowedOrigins, "", "comma-separated list of allowed CORS origins")
	cmd.Flags().String(flagAppBaseURL, "", "public base URL donors are redirected back to")
	cmd.Flags().String(flagStoreDriver, "", "board store driver: sqlite, postgres, or memory")
	cmd.Flags().String(flagStoreDSN, "", "board store DSN (file path for sqlite)")
	cmd.Flags().Int(flagLeaderboardLimit, 0, "maximum rows returned by the leaderboard")
	cmd.Flags().Bool(flagMockDonations, false, "enable the trusted demo donation path")
	cmd.Flags().Duration(flagProviderTimeout, 0, "timeout for provider verification calls (e.g. 10s)")
	cmd.Flags().String(flagPayPalBaseURL, "", "PayPal API base URL (empty disables PayPal)")
	cmd.Flags().String(flagPayPalClientID, "", "PayPal client id")
	cmd.Flags().String(flagPayPalSecret, "", "PayPal client secret")
	cmd.Flags().String(flagPayPalWebhookID, "", "pre-shared PayPal webhook id used for signature verification")
	cmd.Flags().String(flagPayPalBrandName, "", "brand name shown at PayPal checkout")
	cmd.Flags().String(flagBTCPayBaseURL, "", "BTCPay Server base URL (empty disables BTCPay)")
	cmd.Flags().String(flagBTCPayStoreID, "", "BTCPay store id")
	cmd.Flags().String(flagBTCPayAPIKey, "", "BTCPay management API key")

	return cmd
}

func loadConfig(cmd *cobra.Command, cfg *webapi.Config) error {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	for _, flagName := range []string{
		flagListenAddr, flagAllowedOrigins, flagAppBaseURL,
		flagStoreDriver, flagStoreDSN, flagLeaderboardLimit,
		flagMockDonations, flagProviderTimeout,
		flagPayPalBaseURL, flagPayPalClientID, flagPayPalSecret, flagPayPalWebhookID, flagPayPalBrandName,
		flagBTCPayBaseURL, flagBTCPayStoreID, flagBTCPayAPIKey,
	} {
		if err := v.BindPFlag(flagName, cmd.Flags().Lookup(flagName)); err != nil {
			return err
		}
	}

	cfg.ListenAddr = strings.TrimSpace(v.GetString(flagListenAddr))
	cfg.AllowedOrigins = webapi.ParseAllowedOrigins(v.GetString(flagAllowedOrigins))
	cfg.AppBaseURL = strings.TrimSpace(v.GetString(flagAppBaseURL))
	cfg.StoreDriver = strings.TrimSpace(v.GetString(flagStoreDriver))
	cfg.StoreDSN = strings.TrimSpace(v.GetString(flagStoreDSN))
	cfg.LeaderboardLimit = v.GetInt(flagLeaderboardLimit)
	cfg.MockDonations = v.GetBool(flagMockDonations)
	cfg.ProviderTimeout = v.GetDuration(flagProviderTimeout)
	cfg.PayPalBaseURL = strings.TrimSpace(v.GetString(flagPayPalBaseURL))
	cfg.PayPalClientID = v.GetString(flagPayPalClientID)
	cfg.PayPalSecret = v.GetString(flagPayPalSecret)
	cfg.PayPalWebhookID = v.GetString(flagPayPalWebhookID)
	cfg.PayPalBrandName = strings.TrimSpace(v.GetString(flagPayPalBrandName))
	cfg.BTCPayBaseURL = strings.TrimSpace(v.GetString(flagBTCPayBaseURL))
	cfg.BTCPayStoreID = strings.TrimSpace(v.GetString(flagBTCPayStoreID))
	cfg.BTCPayAPIKey = v.GetString(flagBTCPayAPIKey)

	return cfg.Validate()
}
