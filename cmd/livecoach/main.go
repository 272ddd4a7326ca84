// Command livecoach runs a live coaching session against a realtime or
// batch LLM provider, feeding it captured audio, screenshots and typed
// questions.
package main

import (
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/AltairaLabs/livecoach/config"
	"github.com/AltairaLabs/livecoach/logger"
	_ "github.com/AltairaLabs/livecoach/providers/all"
)

func newRootCmd() *cobra.Command {
	v := viper.New()
	root := &cobra.Command{
		Use:           "livecoach",
		Short:         "Real-time AI coaching for interviews, calls and meetings",
		Version:       GetVersion(),
		SilenceUsage:  true,
		SilenceErrors: false,
		Long: `livecoach streams what you hear and see to an LLM provider and prints
suggested answers as the conversation happens.

Gemini Live receives audio and screenshots continuously. Groq and OpenRouter
answer typed (or transcribed) questions and attach queued screenshots when a
question refers to the screen.`,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
				logger.SetVerbose(true)
			}
		},
	}
	root.SetVersionTemplate(GetVersionInfo() + "\n")

	root.PersistentFlags().StringP("config", "c", "", "Config file (default ./livecoach.yaml)")
	root.PersistentFlags().BoolP("verbose", "v", false, "Enable debug logging")

	root.AddCommand(newHistoryCmd(v))
	root.AddCommand(newProvidersCmd())
	root.AddCommand(newRunCmd(v))
	root.AddCommand(newVersionCmd())
	return root
}

// loadConfig reads configuration for cmd, honouring the --config flag.
func loadConfig(cmd *cobra.Command, v *viper.Viper) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	return config.Load(v, path)
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
