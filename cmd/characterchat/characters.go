package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	charservice "characterchat/backend/character/service"
	"characterchat/backend/internal/models"
	"characterchat/backend/pkg/di"

	"github.com/spf13/cobra"
)

func newCharactersCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "characters",
		Aliases: []string{"chars"},
		Short:   "Manage stored characters",
	}

	cmd.AddCommand(
		newCharactersListCmd(opts),
		newCharactersAddCmd(opts),
		newCharactersDeleteCmd(opts),
		newCharactersExportCmd(opts),
		newCharactersImportCmd(opts),
	)
	return cmd
}

func newCharactersListCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List characters in creation order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withContainer(cmd.Context(), func(ctx context.Context, c *di.Container) error {
				characters, err := c.Characters.List(ctx)
				if err != nil {
					return err
				}
				if len(characters) == 0 {
					printInfo("No characters yet. Add one with `characterchat characters add`.")
					return nil
				}

				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "ID\tNAME\tDESCRIPTION\tUPDATED")
				for _, ch := range characters {
					fmt.Fprintf(w, "%s\t%s %s\t%s\t%s\n",
						ch.ID, ch.AvatarIcon, ch.Name, truncate(ch.Description, 48),
						time.UnixMilli(ch.UpdatedAt).Format(time.DateTime))
				}
				return w.Flush()
			})
		},
	}
}

func newCharactersAddCmd(opts *rootOptions) *cobra.Command {
	var req models.CreateCharacterRequest
	var icon string

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Create a character",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			req.AvatarIcon = models.AvatarIcon(icon)
			return opts.withContainer(cmd.Context(), func(ctx context.Context, c *di.Container) error {
				character, err := c.Characters.Add(ctx, req)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), nameStyle.Render(character.Name), infoStyle.Render(character.ID))
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&req.Name, "name", "", "character name (required)")
	cmd.Flags().StringVar(&req.Description, "description", "", "short description (required)")
	cmd.Flags().StringVar(&req.Personality, "personality", "", "personality traits")
	cmd.Flags().StringVar(&req.SystemPrompt, "system-prompt", "", "extra instructions appended to the prompt")
	cmd.Flags().StringVar(&req.AvatarURL, "avatar-url", "", "avatar image URL")
	cmd.Flags().StringVar(&icon, "icon", "", "built-in avatar icon")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("description")
	return cmd
}

func newCharactersDeleteCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a character",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withContainer(cmd.Context(), func(ctx context.Context, c *di.Container) error {
				if err := c.Characters.Delete(ctx, args[0]); err != nil {
					if charservice.IsNotFound(err) {
						return fmt.Errorf("no character with id %q", args[0])
					}
					return err
				}
				printInfo("Deleted %s", args[0])
				return nil
			})
		},
	}
}

func newCharactersExportCmd(opts *rootOptions) *cobra.Command {
	var format, out string

	cmd := &cobra.Command{
		Use:   "export [id...]",
		Short: "Export characters to a JSON or YAML file",
		Long:  "Export the given characters, or all of them when no id is given.",
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := charservice.ParseFormat(format)
			if err != nil {
				return err
			}
			return opts.withContainer(cmd.Context(), func(ctx context.Context, c *di.Container) error {
				export, err := c.Characters.Export(ctx, args, f)
				if err != nil {
					return err
				}
				if out == "-" {
					_, err := cmd.OutOrStdout().Write(export.Data)
					return err
				}
				if out == "" {
					out = export.Filename
				}
				if err := os.WriteFile(out, export.Data, 0o644); err != nil {
					return fmt.Errorf("failed to write export: %w", err)
				}
				printInfo("Exported %d character(s) to %s", export.Count, out)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&format, "format", "json", "json or yaml")
	cmd.Flags().StringVarP(&out, "output", "o", "", "output file, - for stdout (default characterchat-export-DATE.EXT)")
	return cmd
}

func newCharactersImportCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Import characters from a JSON or YAML export",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", args[0], err)
			}
			return opts.withContainer(cmd.Context(), func(ctx context.Context, c *di.Container) error {
				result, err := c.Characters.Import(ctx, data)
				if err != nil {
					return err
				}
				if !result.Success {
					return fmt.Errorf("import failed: %s", result.Error)
				}
				printInfo("Imported %d character(s)", result.Count)
				return nil
			})
		},
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
