package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/templateflow/tfget/pkg/templateflow"
)

func newConfigCmd(app *cliApp) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the current configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := app.client.Config()
			fmt.Fprintf(cmd.OutOrStdout(), `Current TemplateFlow settings:

    TEMPLATEFLOW_HOME=%s
    TEMPLATEFLOW_USE_DATALAD=%s
    TEMPLATEFLOW_AUTOUPDATE=%s
    S3_ROOT=%s
    ORIGIN=%s
    TIMEOUT=%s
`, cfg.Root, onOff(cfg.UseDatalad), onOff(cfg.Autoupdate), cfg.S3Root, cfg.Origin, cfg.Timeout.DurationValue())
			return nil
		},
	}
}

func newLsCmd(app *cliApp, entities []templateflow.Entity) *cobra.Command {
	var flags entityFlags
	cmd := &cobra.Command{
		Use:   "ls TEMPLATE",
		Short: "List the assets of a template matching the optional filters",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.checkTemplate(cmd, args[0]); err != nil {
				return err
			}
			paths, err := app.client.Ls(cmd.Context(), args[0], flags.query())
			if err != nil {
				return err
			}
			printLines(cmd, paths)
			return nil
		},
	}
	flags = addEntityFlags(cmd, entities)
	return cmd
}

func newGetCmd(app *cliApp, entities []templateflow.Entity) *cobra.Command {
	var flags entityFlags
	cmd := &cobra.Command{
		Use:   "get TEMPLATE",
		Short: "Fetch the assets of a template matching the optional filters",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.checkTemplate(cmd, args[0]); err != nil {
				return err
			}
			res, err := app.client.Get(cmd.Context(), args[0], flags.query())
			if err != nil {
				return err
			}
			printLines(cmd, res.Paths())
			return nil
		},
	}
	flags = addEntityFlags(cmd, entities)
	return cmd
}

func newTemplatesCmd(app *cliApp, entities []templateflow.Entity) *cobra.Command {
	var flags entityFlags
	cmd := &cobra.Command{
		Use:   "templates",
		Short: "List the templates that have assets matching the optional filters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			templates, err := app.client.Templates(cmd.Context(), flags.query())
			if err != nil {
				return err
			}
			printLines(cmd, templates)
			return nil
		},
	}
	flags = addEntityFlags(cmd, entities)
	return cmd
}

func newMetadataCmd(app *cliApp) *cobra.Command {
	var citations bool
	cmd := &cobra.Command{
		Use:   "metadata TEMPLATE",
		Short: "Print the template description, or its citations",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if citations {
				refs, err := app.client.Citations(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				printLines(cmd, refs)
				return nil
			}
			meta, err := app.client.Metadata(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			out, err := json.MarshalIndent(meta, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		},
	}
	cmd.Flags().BoolVar(&citations, "citations", false, "Print the ReferencesAndLinks entries only")
	return cmd
}

func newUpdateCmd(app *cliApp) *cobra.Command {
	var opts templateflow.UpdateOptions
	cmd := &cobra.Command{
		Use:   "update",
		Short: "Update the local TemplateFlow archive",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			changed, err := app.client.Update(cmd.Context(), opts)
			if err != nil {
				return err
			}
			if changed {
				fmt.Fprintf(cmd.OutOrStdout(), "Successfully updated local TemplateFlow Archive: %s.\n", app.client.Config().Root)
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), "TemplateFlow Archive not updated.")
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&opts.Local, "local", false, "Use the bundled skeleton without checking for a newer one")
	cmd.Flags().BoolVar(&opts.Overwrite, "overwrite", true, "Overwrite existing files with the skeleton content")
	cmd.Flags().BoolVar(&opts.Silent, "silent", false, "Do not log the added files")
	return cmd
}

func newSetupCmd(app *cliApp) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "setup",
		Short: "Create the local archive, or refresh it when autoupdate is on",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			changed, err := app.client.Setup(cmd.Context(), force)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "TemplateFlow archive ready at %s (updated: %t).\n", app.client.Config().Root, changed)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Update an existing archive even when autoupdate is off")
	return cmd
}

func newWipeCmd(app *cliApp) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "wipe",
		Short: "Wipe out a local bucket-backed TemplateFlow archive",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			root := app.client.Config().Root
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "This will wipe out all data downloaded into %s.\n", root)

			if !yes {
				fmt.Fprintf(out, "Please write the path of your local archive (%s): ", root)
				line, _ := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if strings.TrimSpace(line) != root {
					fmt.Fprintf(out, "\nAborted! %s WAS NOT wiped out.\n", root)
					return nil
				}
			}
			if err := app.client.Wipe(); err != nil {
				return err
			}
			fmt.Fprintf(out, "%s was wiped out.\n", root)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Do not ask for confirmation")
	return cmd
}

// checkTemplate 拒绝归档中不存在的模板，给出可选值列表。
func (a *cliApp) checkTemplate(cmd *cobra.Command, template string) error {
	templates, err := a.client.Templates(cmd.Context(), nil)
	if err != nil {
		return err
	}
	if !slices.Contains(templates, template) {
		return fmt.Errorf("unknown template %q (choose from %s)", template, strings.Join(templates, ", "))
	}
	return nil
}

func printLines(cmd *cobra.Command, lines []string) {
	for _, l := range lines {
		fmt.Fprintln(cmd.OutOrStdout(), l)
	}
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}
