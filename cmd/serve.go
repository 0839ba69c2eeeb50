package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/drg911/htb-pro-card/internal/server"
	"github.com/drg911/htb-pro-card/internal/utils"
	"github.com/drg911/htb-pro-card/internal/warmup"
	"github.com/drg911/htb-pro-card/pkg/service"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the profile fragments over HTTP",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		if viper.GetBool("warmup.enabled") {
			consumer, err := warmup.NewConsumer(warmup.Config{
				Brokers: viper.GetStringSlice("warmup.brokers"),
				Topic:   viper.GetString("warmup.topic"),
				GroupID: viper.GetString("warmup.group"),
				TTL:     service.EffectiveTTL(a.server.Defaults.TTL),
				Labs:    a.server.Labs,
			}, a.svc, utils.Log)
			if err != nil {
				return err
			}
			defer consumer.Stop()
			if err := consumer.Start(ctx); err != nil {
				if errors.Is(err, context.Canceled) {
					return nil
				}
				return err
			}
		}

		return server.New(a.svc, a.server, utils.Log).Start(ctx, viper.GetString("server.listen"))
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("listen", ":8080", "HTTP listen address")
	serveCmd.Flags().Bool("warmup", false, "Consume cache warm-up requests from Kafka")
	viper.BindPFlag("server.listen", serveCmd.Flags().Lookup("listen"))
	viper.BindPFlag("warmup.enabled", serveCmd.Flags().Lookup("warmup"))
}
