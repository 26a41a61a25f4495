package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/miradorstack/marker-engine/internal/repo"
)

var markersFlags struct {
	from     string
	dbPath   string
	schemaID string
}

var markersCmd = &cobra.Command{
	Use:   "markers",
	Short: "Manage marker definitions",
}

var markersImportCmd = &cobra.Command{
	Use:   "import",
	Short: "Import YAML marker definitions into the SQLite store",
	Args:  cobra.NoArgs,
	RunE:  runMarkersImport,
}

var markersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the marker catalog",
	Args:  cobra.NoArgs,
	RunE:  runMarkersList,
}

func init() {
	markersImportCmd.Flags().StringVar(&markersFlags.from, "from", "", "YAML file or directory (default: markers.path from config)")
	markersImportCmd.Flags().StringVar(&markersFlags.dbPath, "db", "", "SQLite path (default: markers.sqlitePath from config)")
	markersListCmd.Flags().StringVar(&markersFlags.schemaID, "schema", "", "Only list markers of this schema")
	markersCmd.AddCommand(markersImportCmd)
	markersCmd.AddCommand(markersListCmd)
}

func runMarkersImport(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig(cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	from := firstNonEmpty(markersFlags.from, cfg.Markers.Path)
	dbPath := firstNonEmpty(markersFlags.dbPath, cfg.Markers.SQLitePath)
	if dbPath == "" {
		return fmt.Errorf("no SQLite path: set --db or markers.sqlitePath")
	}

	definitions, err := repo.LoadYAML(from)
	if err != nil {
		return err
	}
	// Validate against a throwaway catalog so broken definitions never reach the store.
	catalog, rejected := repo.NewCatalog(definitions)
	for _, r := range rejected {
		fmt.Fprintf(cmd.ErrOrStderr(), "skipped: %v\n", r)
	}

	db, err := repo.OpenSQLiteStore(cmd.Context(), dbPath, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.Upsert(cmd.Context(), catalog.List("")...); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "imported %d markers into %s (%d skipped)\n", catalog.Count(), dbPath, len(rejected))
	return nil
}

func runMarkersList(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig(cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	var loader repo.Loader = repo.YAMLSource{Path: cfg.Markers.Path}
	if cfg.Markers.SQLitePath != "" {
		db, err := repo.OpenSQLiteStore(cmd.Context(), cfg.Markers.SQLitePath, logger)
		if err != nil {
			return err
		}
		defer db.Close()
		loader = db
	}
	definitions, err := loader.Load(cmd.Context())
	if err != nil {
		return err
	}
	catalog, _ := repo.NewCatalog(definitions)

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTYPE\tSCHEMA\tRULE\tCOMPONENTS")
	for _, m := range catalog.List(markersFlags.schemaID) {
		rule := "-"
		if m.Activation != nil && m.Activation.Type != "" {
			rule = m.Activation.Type
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\n", m.ID, m.Type(), firstNonEmpty(m.SchemaID, "-"), rule, len(m.ComposedOf))
	}
	return tw.Flush()
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
