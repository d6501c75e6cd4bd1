package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"promolink/internal/linkx"
)

func newExtractCmd() *cobra.Command {
	var tokens []string
	cmd := &cobra.Command{
		Use:   "extract [text...]",
		Short: "Print the marketplace links found in the arguments or stdin",
		RunE: func(cmd *cobra.Command, args []string) error {
			text := strings.Join(args, " ")
			if len(args) == 0 {
				raw, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("read stdin: %w", err)
				}
				text = string(raw)
			}
			for _, u := range linkx.New(tokens...).Extract(text) {
				fmt.Fprintln(cmd.OutOrStdout(), u)
			}
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&tokens, "token", []string{linkx.DefaultToken}, "marketplace token a link must contain (repeatable)")
	return cmd
}
