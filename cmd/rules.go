package main

import (
	"context"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/permit-cli/internal/model"
	"github.com/sells-group/permit-cli/internal/rules"
)

var (
	rulesXLSX string
	rulesDir  string
)

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Manage permit rule tables",
}

var rulesImportCmd = &cobra.Command{
	Use:   "import",
	Short: "Load rule tables into the store",
	Long: `Upserts rules from an XLSX workbook (--xlsx) or rules, regulatory snippets
and fee schedules from a directory of YAML tables (--dir).`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if (rulesXLSX == "") == (rulesDir == "") {
			return eris.New("exactly one of --xlsx or --dir is required")
		}
		if err := cfg.Validate("migrate"); err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		var counts importCounts
		if rulesXLSX != "" {
			counts, err = importXLSX(ctx, st, rulesXLSX)
		} else {
			counts, err = importDir(ctx, st, rulesDir)
		}
		if err != nil {
			return err
		}

		zap.L().Info("rules import complete",
			zap.Int64("rules", counts.Rules),
			zap.Int64("regulations", counts.Regulations),
			zap.Int64("fees", counts.Fees),
		)
		return nil
	},
}

// ruleSink is the part of the store the importers write to.
type ruleSink interface {
	UpsertRules(ctx context.Context, rules []model.Rule) (int64, error)
	UpsertRegulations(ctx context.Context, snippets []model.RegulatorySnippet) (int64, error)
	UpsertFees(ctx context.Context, fees []model.FeeSchedule) (int64, error)
}

type importCounts struct {
	Rules       int64
	Regulations int64
	Fees        int64
}

func importXLSX(ctx context.Context, st ruleSink, path string) (importCounts, error) {
	rs, err := rules.ImportXLSX(path)
	if err != nil {
		return importCounts{}, err
	}
	n, err := st.UpsertRules(ctx, rs)
	if err != nil {
		return importCounts{}, eris.Wrap(err, "upsert rules")
	}
	return importCounts{Rules: n}, nil
}

func importDir(ctx context.Context, st ruleSink, dir string) (importCounts, error) {
	snap, err := rules.LoadDir(dir)
	if err != nil {
		return importCounts{}, err
	}

	var c importCounts
	for _, jid := range snap.Jurisdictions() {
		log := zap.L().With(zap.String("jurisdiction_id", jid))

		n, err := st.UpsertRules(ctx, snap.Rules(jid))
		if err != nil {
			return c, eris.Wrapf(err, "upsert rules for %s", jid)
		}
		c.Rules += n

		n, err = st.UpsertRegulations(ctx, snap.Regulations(jid))
		if err != nil {
			return c, eris.Wrapf(err, "upsert regulations for %s", jid)
		}
		c.Regulations += n

		n, err = st.UpsertFees(ctx, snap.Fees(jid))
		if err != nil {
			return c, eris.Wrapf(err, "upsert fees for %s", jid)
		}
		c.Fees += n

		log.Debug("table imported")
	}
	return c, nil
}

func init() {
	rulesImportCmd.Flags().StringVar(&rulesXLSX, "xlsx", "", "path to a rules workbook")
	rulesImportCmd.Flags().StringVar(&rulesDir, "dir", "", "directory of YAML rule tables")
	rulesCmd.AddCommand(rulesImportCmd)
	rootCmd.AddCommand(rulesCmd)
}
