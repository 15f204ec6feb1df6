package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jmcleod/ironpass/passgen"
	"github.com/jmcleod/ironpass/tagindex"
	"github.com/jmcleod/ironpass/vault"
)

func newNewCmd(a *app) *cobra.Command {
	var (
		mode   string
		length uint8
		kvArgs []string
		tags   []string
		manual bool
	)
	cmd := &cobra.Command{
		Use:   "new <service>",
		Short: "Add a service and print its password",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if mode == "" {
				mode = a.cfg.TextMode
			}
			tm, err := passgen.ParseTextMode(mode)
			if err != nil {
				return err
			}
			if length == 0 {
				length = a.cfg.Length
			}
			kvs, err := parseKVs(kvArgs)
			if err != nil {
				return err
			}
			pass, err := a.passphrase()
			if err != nil {
				return err
			}
			opts := []vault.ServiceOption{vault.WithKVs(kvs...), vault.WithTags(tags...)}
			if manual {
				pw, err := a.prompt.confirmed("Password: ")
				if err != nil {
					return err
				}
				opts = append(opts, vault.WithPassword(pw))
			}
			svc, err := a.store.NewService(cmd.Context(), args[0], pass, tm, length, opts...)
			if err != nil {
				return err
			}
			a.logger.Debug("service created", "service", svc.Name, "mode", svc.TextMode, "length", svc.Len)
			fmt.Fprintln(cmd.OutOrStdout(), svc.Pass)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVarP(&mode, "mode", "m", "", "alphabet: alphanumeric, alphanumeric-underscore, no-whitespace")
	f.Uint8VarP(&length, "length", "l", 0, fmt.Sprintf("password length, 1 to %d", passgen.MaxLength))
	f.StringArrayVar(&kvArgs, "kv", nil, "metadata as key=value (repeatable)")
	f.StringArrayVarP(&tags, "tag", "t", nil, "tag (repeatable)")
	f.BoolVar(&manual, "manual", false, "prompt for the password instead of generating one")
	return cmd
}

func newGetCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "get <service>",
		Short: "Print a service's password",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pass, err := a.passphrase()
			if err != nil {
				return err
			}
			pw, err := a.store.Get(cmd.Context(), args[0], pass, false)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), pw)
			return nil
		},
	}
}

func newShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show <service>",
		Short: "Print a service's metadata and tags",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pass, err := a.passphrase()
			if err != nil {
				return err
			}
			svc, err := a.store.GetAll(cmd.Context(), args[0], pass)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), svc)
			return nil
		},
	}
}

func newListCmd(a *app) *cobra.Command {
	var (
		tags     []string
		showTags bool
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List services, optionally only those carrying any of the given tags",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			pass, err := a.passphrase()
			if err != nil {
				return err
			}
			idx := tagindex.New()
			if err := idx.Refresh(cmd.Context(), a.store, pass); err != nil {
				return err
			}
			known := 0
			for _, t := range tags {
				if idx.SetFilter(t, true) {
					known++
				} else {
					a.logger.Warn("no service has tag", "tag", t)
				}
			}
			if len(tags) > 0 && known == 0 {
				return nil
			}
			out := cmd.OutOrStdout()
			for _, name := range idx.VisibleServices() {
				if showTags {
					fmt.Fprintf(out, "%s\t%s\n", name, strings.Join(idx.TagsOf(name), ","))
				} else {
					fmt.Fprintln(out, name)
				}
			}
			return nil
		},
	}
	cmd.Flags().StringArrayVarP(&tags, "tag", "t", nil, "show only services with this tag (repeatable)")
	cmd.Flags().BoolVar(&showTags, "tags", false, "print each service's tags")
	return cmd
}

func newKVCmd(a *app) *cobra.Command {
	var reset bool
	cmd := &cobra.Command{
		Use:   "kv <service> [key=value...]",
		Short: "Add metadata to a service",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kvs, err := parseKVs(args[1:])
			if err != nil {
				return err
			}
			pass, err := a.passphrase()
			if err != nil {
				return err
			}
			return a.store.SetKVs(cmd.Context(), args[0], pass, kvs, reset)
		},
	}
	cmd.Flags().BoolVar(&reset, "reset", false, "replace the metadata instead of appending")
	return cmd
}

func newTagCmd(a *app) *cobra.Command {
	var reset bool
	cmd := &cobra.Command{
		Use:   "tag <service> [tag...]",
		Short: "Add tags to a service",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pass, err := a.passphrase()
			if err != nil {
				return err
			}
			return a.store.SetTags(cmd.Context(), args[0], pass, args[1:], reset)
		},
	}
	cmd.Flags().BoolVar(&reset, "reset", false, "replace the tags instead of adding")
	return cmd
}

func newRotateCmd(a *app) *cobra.Command {
	var manual bool
	cmd := &cobra.Command{
		Use:     "rotate <service>",
		Aliases: []string{"upgrade"},
		Short:   "Replace a service's password and print the old and new values",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pass, err := a.passphrase()
			if err != nil {
				return err
			}
			var explicit string
			if manual {
				if explicit, err = a.prompt.confirmed("New password: "); err != nil {
					return err
				}
			}
			oldPass, newPass, err := a.store.Upgrade(cmd.Context(), args[0], pass, explicit)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "old: %s\nnew: %s\n", oldPass, newPass)
			return nil
		},
	}
	cmd.Flags().BoolVar(&manual, "manual", false, "prompt for the new password instead of generating one")
	return cmd
}

func newDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "delete <service>",
		Aliases: []string{"rm"},
		Short:   "Remove a service",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pass, err := a.passphrase()
			if err != nil {
				return err
			}
			if err := a.store.Delete(cmd.Context(), args[0], pass); err != nil {
				return err
			}
			a.logger.Info("service deleted", "service", args[0])
			return nil
		},
	}
}
