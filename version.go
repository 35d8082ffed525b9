package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/templateflow/tfget/internal/version"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version of tfget",
		Args:  cobra.NoArgs,
		// 打印版本不需要加载配置。
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.Full())
		},
	}
}
