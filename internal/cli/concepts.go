package cli

import (
	"fmt"
	"io"
	"strconv"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"github.com/oho/hikmara/internal/storage"
)

func NewGetCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get <name>",
		Short: "Show one concept",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(rootOpts, cmd, func(a *app) error {
				c, err := a.store.Get(cmd.Context(), args[0])
				if err != nil {
					return WrapExitError(ExitCommandError, "get concept", err)
				}
				if c == nil {
					return WrapExitError(ExitFailure, "get concept",
						errors.WithHint(errors.Newf("no concept named %q", args[0]), "use `hikmara list --prefix` to browse names"))
				}
				return a.out.Print(c, func(w io.Writer) error {
					fmt.Fprintf(w, "%s (#%d)\n", c.ConceptName, c.ID)
					if c.Source != nil {
						fmt.Fprintf(w, "source:  %s\n", *c.Source)
					}
					fmt.Fprintf(w, "created: %s\n\n%s\n", c.CreatedAt.Format("2006-01-02 15:04:05"), c.Content)
					return nil
				})
			})
		},
	}
}

func NewUpdateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "update <name> <content>",
		Short: "Replace the content of a concept",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(rootOpts, cmd, func(a *app) error {
				ok, err := a.store.Update(cmd.Context(), args[0], args[1])
				if err != nil {
					return WrapExitError(ExitCommandError, "update concept", err)
				}
				return reportChange(a, args[0], "updated", ok)
			})
		},
	}
}

func NewDeleteCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <name>",
		Short: "Remove a concept",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(rootOpts, cmd, func(a *app) error {
				ok, err := a.store.Delete(cmd.Context(), args[0])
				if err != nil {
					return WrapExitError(ExitCommandError, "delete concept", err)
				}
				return reportChange(a, args[0], "deleted", ok)
			})
		},
	}
}

func reportChange(a *app, name, verb string, ok bool) error {
	err := a.out.Print(map[string]any{"name": name, verb: ok}, func(w io.Writer) error {
		if ok {
			_, err := fmt.Fprintf(w, "%s %s\n", verb, name)
			return err
		}
		_, err := fmt.Fprintf(w, "no concept named %s\n", name)
		return err
	})
	if err != nil {
		return err
	}
	if !ok {
		return NewExitError(ExitFailure, "concept not found")
	}
	return nil
}

type listOptions struct {
	prefix string
	source string
	limit  int
	offset int
}

func NewListCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &listOptions{}
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List concepts in insertion order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(rootOpts, cmd, func(a *app) error {
				concepts, err := a.store.List(cmd.Context(), storage.ListOptions{
					Prefix: opts.prefix,
					Source: opts.source,
					Limit:  opts.limit,
					Offset: opts.offset,
				})
				if err != nil {
					return WrapExitError(ExitCommandError, "list concepts", err)
				}
				if concepts == nil {
					concepts = []storage.Concept{}
				}
				return a.out.Print(concepts, func(w io.Writer) error {
					if len(concepts) == 0 {
						_, err := fmt.Fprintln(w, "no concepts")
						return err
					}
					rows := make([][]string, len(concepts))
					for i, c := range concepts {
						src := ""
						if c.Source != nil {
							src = *c.Source
						}
						rows[i] = []string{strconv.FormatInt(c.ID, 10), c.ConceptName, truncate(c.Content, 60), src}
					}
					return a.out.Table([]string{"ID", "NAME", "CONTENT", "SOURCE"}, rows)
				})
			})
		},
	}
	cmd.Flags().StringVarP(&opts.prefix, "prefix", "p", "", "only names starting with prefix")
	cmd.Flags().StringVar(&opts.source, "source", "", "only concepts with this source")
	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 50, "maximum rows (0 for all)")
	cmd.Flags().IntVar(&opts.offset, "offset", 0, "rows to skip")
	return cmd
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
