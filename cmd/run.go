package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/conveyci/conveyor/exec"
	"github.com/conveyci/conveyor/pkg"
	"github.com/conveyci/conveyor/sdk"
)

var (
	pipelineFile string
	watchMode    bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "run a pipeline once and report its status",
	Long: `Runs the given pipeline definition (or the built-in default) against
the configured inputs. The process exits 0 when the run completed with no
failing step and 1 otherwise.`,
	Run: func(cmd *cobra.Command, args []string) {
		inputs, err := loadRunInputs()
		if err != nil {
			log.Fatal().Err(err).Msg("invalid inputs")
		}

		pipeline, err := loadRunPipeline()
		if err != nil {
			log.Fatal().Err(err).Msg("unable to load pipeline")
		}

		executor, err := exec.New(executorConfig(inputs))
		if err != nil {
			log.Fatal().Err(err).Msg("unable to create executor")
		}
		defer executor.Close()

		if watchMode {
			if err := watchAndRun(cmd.Context(), inputs, executor); err != nil {
				log.Fatal().Err(err).Msg("watch failed")
			}
			return
		}

		run, err := runOnce(cmd.Context(), pipeline, inputs, executor)
		if err != nil {
			log.Fatal().Err(err).Msg("run failed")
		}

		if run.Status() != sdk.SuccessStatus {
			os.Exit(1)
		}
	},
}

func init() {
	runCmd.Flags().StringVarP(&pipelineFile, "file", "f", "", "pipeline definition file (defaults to the built-in pipeline)")
	runCmd.Flags().BoolVar(&watchMode, "watch", false, "re-run the pipeline when the definition file changes")
	runCmd.Flags().String("repository-token", "", "access token handed to the executed steps")
	runCmd.Flags().String("branch", "", "branch the pipeline runs against")
	runCmd.Flags().String("enable-ci", "", "whether the CI steps run")
	runCmd.Flags().String("enable-code-quality", "", "whether the lint steps run")
	runCmd.Flags().String("backend", exec.LocalBackend, "executor backend (local or docker)")
	runCmd.Flags().String("image", "", "default container image for the docker backend")
	runCmd.Flags().String("docker-url", "", "docker host url (defaults to the environment)")
	runCmd.Flags().String("workdir", "", "working directory for executed steps")
	runCmd.Flags().String("output", "", "key/value file the final status is appended to")
	runCmd.Flags().Duration("step-timeout", exec.DefaultTimeout, "default per-step timeout")

	bindings := map[string]string{
		"repository_token":    "repository-token",
		"branch":              "branch",
		"enable_ci":           "enable-ci",
		"enable_code_quality": "enable-code-quality",
		"backend":             "backend",
		"image":               "image",
		"docker_url":          "docker-url",
		"workdir":             "workdir",
		"output":              "output",
		"step_timeout":        "step-timeout",
	}
	for key, flag := range bindings {
		if err := viper.BindPFlag(key, runCmd.Flags().Lookup(flag)); err != nil {
			log.Panic().Err(err).Msg("failed to bind flags")
		}
	}

	rootCmd.AddCommand(runCmd)
}

func loadRunInputs() (pkg.Inputs, error) {
	return pkg.NewInputs(
		viper.GetString("repository_token"),
		viper.GetString("branch"),
		viper.GetString("enable_ci"),
		viper.GetString("enable_code_quality"),
	)
}

func loadRunPipeline() (*sdk.Pipeline, error) {
	if pipelineFile == "" {
		return sdk.DefaultPipeline(), nil
	}

	return sdk.LoadPipeline(pipelineFile)
}

func executorConfig(inputs pkg.Inputs) exec.Config {
	return exec.Config{
		Backend: viper.GetString("backend"),
		FromEnv: viper.GetString("docker_url") == "",
		Url:     viper.GetString("docker_url"),
		Image:   viper.GetString("image"),
		Workdir: viper.GetString("workdir"),
		Env: []string{
			"REPOSITORY_TOKEN=" + inputs.RepositoryToken,
			"BRANCH=" + inputs.Branch,
		},
		DefaultTimeout: viper.GetDuration("step_timeout"),
	}
}

func runOnce(ctx context.Context, pipeline *sdk.Pipeline, inputs pkg.Inputs, executor exec.Executor) (*sdk.Run, error) {
	flags := pkg.MergeFlags(inputs.Flags(), pipeline.Inputs)

	controller, err := pkg.NewController(pkg.RegistryFor(pipeline), executor, flags)
	if err != nil {
		return nil, err
	}

	run, err := controller.Run(ctx, pipeline.Key)
	if err != nil {
		return nil, err
	}

	if err := statusReporter().Report(ctx, run); err != nil {
		return nil, err
	}

	return run, nil
}

func statusReporter() pkg.Reporter {
	reporters := pkg.MultiReporter{pkg.LogReporter{}}

	path := viper.GetString("output")
	if path == "" {
		path = os.Getenv("GITHUB_OUTPUT")
	}
	if path != "" {
		reporters = append(reporters, pkg.OutputFileReporter{Path: path})
	}

	return reporters
}

// watchAndRun keeps running the pipeline file whenever it changes, until
// interrupted. Failing runs are logged but do not stop the watch.
func watchAndRun(ctx context.Context, inputs pkg.Inputs, executor exec.Executor) error {
	if pipelineFile == "" {
		return fmt.Errorf("watch mode requires a pipeline file")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("unable to create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(pipelineFile); err != nil {
		return fmt.Errorf("unable to watch %q: %w", pipelineFile, err)
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	reload := func() {
		pipeline, err := sdk.LoadPipeline(pipelineFile)
		if err != nil {
			log.Error().Err(err).Msg("unable to reload pipeline")
			return
		}

		if _, err := runOnce(ctx, pipeline, inputs, executor); err != nil {
			log.Error().Err(err).Msg("run failed")
		}
	}

	reload()

	var debounce <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-sig:
			return nil
		case event := <-watcher.Events:
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			log.Info().Str("file", event.Name).Msg("pipeline definition changed")
			debounce = time.After(250 * time.Millisecond)
		case <-debounce:
			debounce = nil
			reload()
		case err := <-watcher.Errors:
			log.Warn().Err(err).Msg("watch error")
		}
	}
}
