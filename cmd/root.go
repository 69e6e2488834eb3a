package cmd

import "github.com/spf13/cobra"

type rootFlags struct {
	assumeYes bool
}

func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "giveaway",
		Short:         "Give gifticons away to people nearby",
		Long:          "giveaway discovers people nearby, lays them out on a radar and sends one of your gifticons to a randomly chosen person when you throw it.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	flags := &rootFlags{}
	rootCmd.PersistentFlags().BoolVarP(&flags.assumeYes, "yes", "y", false, "Grant the discovery permission without prompting")

	app, err := wireApp()
	if err != nil {
		rootCmd.RunE = func(_ *cobra.Command, _ []string) error {
			return err
		}
		return rootCmd
	}

	rootCmd.AddCommand(
		newVersionCmd(),
		newAuthCmd(app),
		newScanCmd(app, flags),
		newSendCmd(app, flags),
		newItemsCmd(app),
		newHistoryCmd(app),
		newAdvertiseCmd(app, flags),
		newSessionCmd(app, flags),
	)

	return rootCmd
}
