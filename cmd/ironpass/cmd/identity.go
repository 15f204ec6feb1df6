package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jmcleod/ironpass/record"
	"github.com/jmcleod/ironpass/vault"
)

func parseKVs(args []string) ([]vault.KV, error) {
	kvs := make([]vault.KV, 0, len(args))
	for _, arg := range args {
		kv, err := record.ParseKV(arg)
		if err != nil {
			return nil, err
		}
		kvs = append(kvs, kv)
	}
	return kvs, nil
}

func newInitCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "init <name> [key=value...]",
		Short: "Create a new store with an identity",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kvs, err := parseKVs(args[1:])
			if err != nil {
				return err
			}
			pass, err := a.prompt.confirmed("Passphrase: ")
			if err != nil {
				return err
			}
			id, err := a.store.Init(cmd.Context(), args[0], pass, kvs)
			if err != nil {
				return err
			}
			a.logger.Info("store initialized", "dir", a.store.BaseDir(), "identity", id.Name)
			fmt.Fprintln(cmd.OutOrStdout(), id)
			return nil
		},
	}
}

func newIDCmd(a *app) *cobra.Command {
	var reset bool
	cmd := &cobra.Command{
		Use:   "id [key=value...]",
		Short: "Show the identity, or add metadata to it",
		RunE: func(cmd *cobra.Command, args []string) error {
			kvs, err := parseKVs(args)
			if err != nil {
				return err
			}
			pass, err := a.passphrase()
			if err != nil {
				return err
			}
			if len(kvs) > 0 || reset {
				if err := a.store.SetKVsID(cmd.Context(), pass, kvs, reset); err != nil {
					return err
				}
			}
			id, err := a.store.GetID(cmd.Context(), pass)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), id)
			return nil
		},
	}
	cmd.Flags().BoolVar(&reset, "reset", false, "replace the metadata instead of appending")
	return cmd
}

func newPasswdCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "passwd",
		Short: "Change the store passphrase",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			oldPass, err := a.prompt.secret("Current passphrase: ")
			if err != nil {
				return err
			}
			newPass, err := a.prompt.confirmed("New passphrase: ")
			if err != nil {
				return err
			}
			if err := a.store.ChangePassphrase(cmd.Context(), oldPass, newPass); err != nil {
				return err
			}
			a.logger.Info("passphrase changed", "dir", a.store.BaseDir())
			return nil
		},
	}
}
