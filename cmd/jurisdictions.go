package main

import (
	"context"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/permit-cli/internal/jurisdiction"
	"github.com/sells-group/permit-cli/internal/model"
)

var (
	jurisdictionsShp     string
	jurisdictionsLevel   string
	jurisdictionsState   string
	jurisdictionsContact string
)

var jurisdictionsCmd = &cobra.Command{
	Use:   "jurisdictions",
	Short: "Manage permit authority boundaries",
}

var jurisdictionsLoadCmd = &cobra.Command{
	Use:   "load",
	Short: "Load TIGER place or county boundaries into the store",
	Long: `Reads a TIGER/Line place or county shapefile and upserts one permit
authority per polygon. Authority ids are the slugged name plus state, e.g.
"austin-tx" or "travis-county-tx", matching the jurisdiction_id of rule tables.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("migrate"); err != nil {
			return err
		}

		bounds, err := jurisdiction.LoadShapefile(jurisdictionsShp, jurisdiction.LoadOptions{
			Level:   model.JurisdictionLevel(jurisdictionsLevel),
			State:   jurisdictionsState,
			Contact: jurisdictionsContact,
		})
		if err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		n, err := loadBoundaries(ctx, st, bounds)
		if err != nil {
			return err
		}

		zap.L().Info("jurisdictions loaded",
			zap.String("shp", jurisdictionsShp),
			zap.Int("loaded", n),
		)
		return nil
	},
}

type boundarySink interface {
	UpsertJurisdiction(ctx context.Context, b model.Boundary) error
}

func loadBoundaries(ctx context.Context, st boundarySink, bounds []model.Boundary) (int, error) {
	for i, b := range bounds {
		if err := ctx.Err(); err != nil {
			return i, err
		}
		if err := st.UpsertJurisdiction(ctx, b); err != nil {
			return i, eris.Wrapf(err, "upsert jurisdiction %s", b.Authority.ID)
		}
	}
	return len(bounds), nil
}

func init() {
	jurisdictionsLoadCmd.Flags().StringVar(&jurisdictionsShp, "shp", "", "path to a .shp file (required)")
	jurisdictionsLoadCmd.Flags().StringVar(&jurisdictionsLevel, "level", string(model.LevelCity), "authority level: city or county")
	jurisdictionsLoadCmd.Flags().StringVar(&jurisdictionsState, "state", "", "two-letter state code (required)")
	jurisdictionsLoadCmd.Flags().StringVar(&jurisdictionsContact, "contact", "", "contact line stored with each authority")
	_ = jurisdictionsLoadCmd.MarkFlagRequired("shp")
	_ = jurisdictionsLoadCmd.MarkFlagRequired("state")
	jurisdictionsCmd.AddCommand(jurisdictionsLoadCmd)
	rootCmd.AddCommand(jurisdictionsCmd)
}
