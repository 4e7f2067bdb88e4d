package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/0xPuncker/task-watcher/internal/job"
	"github.com/0xPuncker/task-watcher/internal/manifest"
	"github.com/0xPuncker/task-watcher/internal/taskservice"
)

type openFunc func(kind string) (taskservice.Connector, error)

type cli struct {
	logger   *logrus.Logger
	open     openFunc
	backend  string
	logLevel string
	client   *job.Client
}

func newRootCommand(logger *logrus.Logger, open openFunc) *cobra.Command {
	c := &cli{logger: logger, open: open}

	root := &cobra.Command{
		Use:           "taskctl",
		Short:         "Manage scheduled jobs",
		Long:          "List, inspect, register and remove jobs in the task service",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.init()
		},
	}
	root.PersistentFlags().StringVar(&c.backend, "backend", "auto", "task backend: auto, windows or memory")
	root.PersistentFlags().StringVar(&c.logLevel, "log-level", "warn", "log level")

	root.AddCommand(
		c.listCommand(),
		c.getCommand(),
		c.exportCommand(),
		c.deleteCommand(),
		c.applyCommand(),
		c.mkdirCommand(),
	)
	return root
}

func (c *cli) init() error {
	level, err := logrus.ParseLevel(c.logLevel)
	if err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}
	c.logger.SetLevel(level)

	connector, err := c.open(c.backend)
	if err != nil {
		return err
	}
	c.client = job.NewClient(connector, c.logger)
	return nil
}

func (c *cli) listCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list [folder]",
		Short: "List jobs below a folder, nested folders included",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			folder := `\`
			if len(args) == 1 {
				folder = args[0]
			}

			jobs, err := c.client.ListAll(folder)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "PATH\tSTATE\tTRIGGERS\tHIDDEN")
			for _, j := range jobs {
				fmt.Fprintf(w, "%s\t%s\t%d\t%t\n", j.Path, j.State, len(j.Definition.Triggers), j.Definition.Hidden)
			}
			return w.Flush()
		},
	}
}

func (c *cli) getCommand() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "get <folder> <name>",
		Short: "Show a job as a manifest entry",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			j, err := c.client.Lookup(args[0], args[1])
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), output, manifest.FromDefinition(j.Folder(), j.Name, j.Definition))
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "yaml", "output format: yaml or json")
	return cmd
}

func (c *cli) exportCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "export <folder> <name>",
		Short: "Print the XML definition of a job",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := c.client.ExportXML(args[0], args[1])
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), text)
			return err
		},
	}
}

func (c *cli) deleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <folder> <name>",
		Short: "Remove a job",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.client.Remove(args[0], args[1]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %s\n", taskservice.JoinPath(append(taskservice.SplitPath(args[0]), args[1])...))
			return nil
		},
	}
}

func (c *cli) applyCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "apply <manifest>",
		Short: "Register every job of a manifest file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := manifest.Load(args[0])
			if err != nil {
				return err
			}

			report := manifest.Apply(c.client, m, c.logger)
			out := cmd.OutOrStdout()
			for _, res := range report.Results {
				if res.Err != nil {
					fmt.Fprintf(out, "FAIL %s: %v\n", res.Path, res.Err)
					continue
				}
				fmt.Fprintf(out, "ok   %s\n", res.Path)
			}

			if failed := len(report.Failed()); failed > 0 {
				return fmt.Errorf("%d of %d jobs failed", failed, len(report.Results))
			}
			return nil
		},
	}
}

func (c *cli) mkdirCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "mkdir <folder>",
		Short: "Create a folder and any missing parent",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.client.CreateFolder(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created %s\n", taskservice.CleanPath(args[0]))
			return nil
		},
	}
}

func render(w io.Writer, format string, v interface{}) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml", "":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}
