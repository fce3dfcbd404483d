package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"campusattend/internal/adapters/qrtoken"
	"campusattend/internal/clock"
)

// NewTokenCommand groups the offline check-in token tools.
func NewTokenCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Encode and inspect check-in tokens",
	}
	cmd.AddCommand(newTokenEncodeCommand(rootOpts))
	cmd.AddCommand(newTokenDecodeCommand(rootOpts))
	return cmd
}

func newTokenEncodeCommand(rootOpts *RootOptions) *cobra.Command {
	var userID, eventID string
	cmd := &cobra.Command{
		Use:          "encode",
		Short:        "Print the check-in token for a user and event",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			tok, err := qrtoken.NewCodec(clock.Real()).Encode(userID, eventID)
			if err != nil {
				return WrapExitError(ExitCommandError, "encode token", err)
			}
			out := struct {
				Token string `json:"token"`
			}{tok}
			return writeResult(cmd.OutOrStdout(), rootOpts.Format, out, func(w io.Writer) {
				fmt.Fprintln(w, tok)
			})
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "attendee user ID")
	cmd.Flags().StringVar(&eventID, "event", "", "event ID")
	_ = cmd.MarkFlagRequired("user")
	_ = cmd.MarkFlagRequired("event")
	return cmd
}

func newTokenDecodeCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:          "decode <token>",
		Short:        "Validate a scanned token and print its contents",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			res := qrtoken.NewCodec(clock.Real()).Decode(args[0])
			err := writeResult(cmd.OutOrStdout(), rootOpts.Format, res, func(w io.Writer) {
				if !res.Valid {
					fmt.Fprintf(w, "invalid (%s): %s\n", res.Err.Kind, res.Err.Message)
					return
				}
				issued := time.UnixMilli(res.Token.IssuedAt).UTC().Format(time.RFC3339)
				fmt.Fprintf(w, "user:    %s\nevent:   %s\nissued:  %s\nversion: %s\n",
					res.Token.UserID, res.Token.EventID, issued, res.Token.Version)
			})
			if err != nil {
				return err
			}
			if !res.Valid {
				return NewExitError(ExitFailure, res.Err.Message)
			}
			return nil
		},
	}
}
