package main

import (
	"context"
	"errors"
	"fmt"

	"characterchat/backend/credential"
	"characterchat/backend/pkg/di"

	"github.com/peterh/liner"
	"github.com/spf13/cobra"
)

func newKeyCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "key",
		Short: "Manage the gateway API key",
	}
	cmd.AddCommand(
		newKeySetCmd(opts),
		newKeyShowCmd(opts),
		newKeyClearCmd(opts),
		newKeyValidateCmd(opts),
	)
	return cmd
}

func newKeySetCmd(opts *rootOptions) *cobra.Command {
	var skipCheck bool

	cmd := &cobra.Command{
		Use:   "set [key]",
		Short: "Store the API key, prompting for it when omitted",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var key string
			if len(args) == 1 {
				key = args[0]
			} else {
				var err error
				if key, err = readSecret("API key: "); err != nil {
					return err
				}
			}

			return opts.withContainer(cmd.Context(), func(ctx context.Context, c *di.Container) error {
				if !skipCheck {
					check := c.Credentials.Validate(ctx, key)
					if !check.Valid {
						return fmt.Errorf("key rejected: %s", check.Error)
					}
				}
				if err := c.Credentials.Set(ctx, key); err != nil {
					return err
				}
				printInfo("Stored %s", credential.Mask(key))
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&skipCheck, "no-validate", false, "store the key without probing the gateway")
	return cmd
}

func newKeyShowCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the stored key, masked",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withContainer(cmd.Context(), func(ctx context.Context, c *di.Container) error {
				line, err := c.Credentials.Describe(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), line)
				return nil
			})
		},
	}
}

func newKeyClearCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove the stored key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withContainer(cmd.Context(), func(ctx context.Context, c *di.Container) error {
				if err := c.Credentials.Clear(ctx); err != nil {
					return err
				}
				printInfo("API key removed")
				return nil
			})
		},
	}
}

func newKeyValidateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate [key]",
		Short: "Check a key, or the stored one, against the gateway",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withContainer(cmd.Context(), func(ctx context.Context, c *di.Container) error {
				key := ""
				if len(args) == 1 {
					key = args[0]
				} else {
					stored, err := c.Credentials.Get(ctx)
					if err != nil && !errors.Is(err, credential.ErrNotSet) {
						return err
					}
					key = stored
				}

				check := c.Credentials.Validate(ctx, key)
				if !check.Valid {
					return fmt.Errorf("invalid: %s", check.Error)
				}
				printInfo("%s is valid", credential.Mask(key))
				return nil
			})
		},
	}
}

// readSecret prompts without echoing input.
func readSecret(prompt string) (string, error) {
	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)

	secret, err := line.PasswordPrompt(prompt)
	if errors.Is(err, liner.ErrPromptAborted) {
		return "", errors.New("aborted")
	}
	return secret, err
}
