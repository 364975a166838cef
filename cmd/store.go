package main

import (
	"context"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/openhouse-labs/scheme-intel/internal/model"
	"github.com/openhouse-labs/scheme-intel/internal/store"
)

// scope flags shared by the data commands.
var (
	flagTenant      string
	flagDevelopment string
	flagHouseType   string
	flagUnit        string
)

func addScopeFlags(cmd *cobra.Command, includeUnit bool) {
	cmd.Flags().StringVar(&flagTenant, "tenant", "", "tenant ID (required)")
	cmd.Flags().StringVar(&flagDevelopment, "development", "", "development ID (required)")
	cmd.Flags().StringVar(&flagHouseType, "house-type", "", "house type code (required)")
	if includeUnit {
		cmd.Flags().StringVar(&flagUnit, "unit", "", "unit ID (optional)")
	}
}

func initStore(ctx context.Context) (store.Store, error) {
	var (
		st  store.Store
		err error
	)
	switch cfg.Store.Driver {
	case "sqlite":
		path := cfg.Store.SQLitePath
		if path == "" {
			path = "scheme-intel.db"
		}
		st, err = store.NewSQLite(path)
	case "postgres":
		st, err = store.NewPostgres(ctx, cfg.Store.DatabaseURL, cfg.Store.Pool)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close() //nolint:errcheck
		return nil, err
	}
	return st, nil
}

func scopeFromFlags() (model.Scope, error) {
	scope := model.Scope{
		TenantID:      flagTenant,
		DevelopmentID: flagDevelopment,
		HouseType:     flagHouseType,
		UnitID:        flagUnit,
	}
	if err := scope.Validate(); err != nil {
		return model.Scope{}, err
	}
	return scope, nil
}
