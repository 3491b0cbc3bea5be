package cmd

import (
	"context"

	"github.com/rs/zerolog/log"
	"github.com/shono-io/mini"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/conveyci/conveyor/pkg"
)

var agentCmd = &cobra.Command{
	Use:   "agent",
	Short: "run pipelines published to the repository",
	Long:  `The agent watches the pipeline repository and executes every pipeline that is published to it, recording the runs back into the repository.`,
	Run: func(cmd *cobra.Command, args []string) {
		svc, err := mini.FromViper(viper.GetViper(),
			mini.WithDescription("Executes CI pipelines published to the repository"),
			mini.WithVersion("1.0.0"),
			mini.WithConfigWatched(),
		)
		if err != nil {
			log.Panic().Err(err).Msg("failed to create service")
		}

		w := pkg.NewWorker()
		if err := svc.Run(context.Background(), w); err != nil {
			svc.Log.Panic().Err(err).Msg("service error")
		}
	},
}

func init() {
	mini.ConfigureCommand(agentCmd)

	if err := viper.BindPFlags(agentCmd.PersistentFlags()); err != nil {
		log.Panic().Err(err).Msg("failed to bind flags")
	}

	rootCmd.AddCommand(agentCmd)
}
