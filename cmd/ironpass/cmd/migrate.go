package cmd

import (
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/jmcleod/ironpass/encryptor"
	"github.com/jmcleod/ironpass/vault"
)

const journalFileName = ".migrations.db"

func newMigrateCmd(a *app) *cobra.Command {
	var (
		from, to    string
		journalPath string
		recoverRun  bool
		history     bool
	)
	cmd := &cobra.Command{
		Use:   "migrate [--from <cipher>] [--to <cipher>]",
		Short: "Re-seal every record in the store under another cipher",
		Long: `Re-seal every record in the store under another cipher. Files are moved into
the legacy/ staging directory while they are rewritten. If a run is
interrupted, use --recover to put staged files back before retrying.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			if recoverRun {
				restored, discarded, err := a.store.RecoverStaging(cmd.Context())
				for _, f := range restored {
					fmt.Fprintf(out, "restored  %s\n", f)
				}
				for _, f := range discarded {
					fmt.Fprintf(out, "discarded %s\n", f)
				}
				return err
			}

			if journalPath == "" {
				journalPath = filepath.Join(a.store.BaseDir(), journalFileName)
			}
			if err := a.store.Files().EnsureDir(); err != nil {
				return err
			}
			journal, err := vault.NewBoltJournalFromFile(journalPath, nil)
			if err != nil {
				return err
			}
			defer journal.Close()

			if history {
				return printRuns(out, journal)
			}
			// An empty --from resolves to the identity's cipher.
			var src encryptor.Encryptor
			if from != "" {
				if src, err = a.cfg.cipher(from); err != nil {
					return err
				}
			}
			dst := a.store.Encryptor()
			if to != "" {
				if dst, err = a.cfg.cipher(to); err != nil {
					return err
				}
			}
			pass, err := a.passphrase()
			if err != nil {
				return err
			}
			res, err := a.store.MigrateCipher(cmd.Context(), pass, src, dst,
				vault.WithJournal(journal),
				vault.WithMigrationLogger(a.logger),
			)
			if res != nil {
				fmt.Fprintf(out, "run %s: %s -> %s, %d migrated, %d skipped\n",
					res.RunID, res.From, res.To, res.Migrated, res.Skipped)
			}
			return err
		},
	}
	f := cmd.Flags()
	f.StringVar(&from, "from", "", "cipher the store is currently sealed with (default read from the identity file)")
	f.StringVar(&to, "to", "", "target cipher (default the --cipher or configured cipher)")
	f.StringVar(&journalPath, "journal", "", "migration journal file (default <dir>/"+journalFileName+")")
	f.BoolVar(&recoverRun, "recover", false, "resolve files left in staging by an interrupted run")
	f.BoolVar(&history, "history", false, "print past migration runs from the journal")
	cmd.MarkFlagsMutuallyExclusive("recover", "history")
	return cmd
}

func printRuns(w io.Writer, j vault.MigrationJournal) error {
	runs, err := j.Runs()
	if err != nil {
		return err
	}
	for _, r := range runs {
		status := "ok"
		switch {
		case !r.Finished():
			status = "interrupted"
		case r.Error != "":
			status = "failed: " + r.Error
		}
		fmt.Fprintf(w, "%s  %s  %s -> %s  %d files  %s\n",
			r.StartedAt.Format(time.RFC3339), r.ID, r.From, r.To, len(r.Entries), status)
	}
	return nil
}
