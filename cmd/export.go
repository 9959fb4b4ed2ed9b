package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/user-dashboard/internal/export"
	"github.com/sells-group/user-dashboard/internal/model"
	"github.com/sells-group/user-dashboard/internal/query"
	"github.com/sells-group/user-dashboard/internal/snapshot"
)

var exportFlags struct {
	format           string
	output           string
	filterFile       string
	userTypes        []string
	regions          []string
	memberships      []string
	ids              string
	registrationFrom string
	registrationTo   string
	activityFrom     string
	activityTo       string
	sortBy           string
	sortDir          string
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the users matching a filter to CSV or XLSX",
	Long:  "Loads the materialized fact table, applies the filter given by flags or --filter-file, and writes every matching user.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("export"); err != nil {
			return err
		}

		format, err := export.ParseFormat(exportFlags.format)
		if err != nil {
			return err
		}
		raw, err := exportRawFilter()
		if err != nil {
			return err
		}
		fs, issues := query.ParseFilter(raw)
		for _, is := range issues {
			zap.L().Warn("filter input ignored", zap.String("field", is.Field), zap.String("value", is.Value), zap.String("reason", is.Reason))
		}

		st, err := openStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		geo, err := loadGeo(cfg)
		if err != nil {
			return err
		}
		t, err := snapshot.New(st, geo).Load(ctx, true)
		if err != nil {
			return err
		}

		ids := query.Filter(t, fs)
		aggs := export.Rows(t, fs, ids, ids)

		output := exportFlags.output
		if output == "" {
			output = export.Filename(cfg.Dashboard.ExportFilename, format, time.Now())
		}
		err = writeExportFile(output, format, aggs)
		if errors.Is(err, export.ErrExportEmpty) {
			zap.L().Info(export.EmptyNotice)
			return nil
		}
		if err != nil {
			return err
		}
		zap.L().Info("export written", zap.String("path", output), zap.Int("users", len(aggs)))
		return nil
	},
}

func exportRawFilter() (query.RawFilter, error) {
	var raw query.RawFilter
	if exportFlags.filterFile != "" {
		data, err := os.ReadFile(exportFlags.filterFile)
		if err != nil {
			return raw, eris.Wrapf(err, "read filter file %s", exportFlags.filterFile)
		}
		if err := json.Unmarshal(data, &raw); err != nil {
			return raw, eris.Wrapf(err, "parse filter file %s", exportFlags.filterFile)
		}
	}

	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&raw.RegistrationFrom, exportFlags.registrationFrom)
	set(&raw.RegistrationTo, exportFlags.registrationTo)
	set(&raw.ActivityFrom, exportFlags.activityFrom)
	set(&raw.ActivityTo, exportFlags.activityTo)
	set(&raw.IDSearch, exportFlags.ids)
	set(&raw.SortBy, exportFlags.sortBy)
	set(&raw.SortDir, exportFlags.sortDir)
	if len(exportFlags.userTypes) > 0 {
		raw.UserTypes = exportFlags.userTypes
	}
	if len(exportFlags.regions) > 0 {
		raw.Regions = exportFlags.regions
	}
	if len(exportFlags.memberships) > 0 {
		raw.Memberships = exportFlags.memberships
	}
	return raw, nil
}

// writeExportFile renders into memory first so an empty export never
// creates a file.
func writeExportFile(path string, format export.Format, aggs []model.UserAggregate) error {
	var buf bytes.Buffer
	if err := export.Write(&buf, format, aggs); err != nil {
		return err
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return eris.Wrapf(err, "write export %s", path)
	}
	return nil
}

func init() {
	f := exportCmd.Flags()
	f.StringVar(&exportFlags.format, "format", "csv", "csv or xlsx")
	f.StringVarP(&exportFlags.output, "output", "o", "", "output path (default <export_filename>_<date>.<format>)")
	f.StringVar(&exportFlags.filterFile, "filter-file", "", "JSON filter document")
	f.StringSliceVar(&exportFlags.userTypes, "user-types", nil, "user types to include")
	f.StringSliceVar(&exportFlags.regions, "regions", nil, "regions to include")
	f.StringSliceVar(&exportFlags.memberships, "memberships", nil, "memberships to include")
	f.StringVar(&exportFlags.ids, "ids", "", "user ids, separated by commas or spaces")
	f.StringVar(&exportFlags.registrationFrom, "registration-from", "", "registration date lower bound (YYYY-MM-DD)")
	f.StringVar(&exportFlags.registrationTo, "registration-to", "", "registration date upper bound (YYYY-MM-DD)")
	f.StringVar(&exportFlags.activityFrom, "activity-from", "", "activity week lower bound (YYYY-MM-DD)")
	f.StringVar(&exportFlags.activityTo, "activity-to", "", "activity week upper bound (YYYY-MM-DD)")
	f.StringVar(&exportFlags.sortBy, "sort-by", "", "sort column")
	f.StringVar(&exportFlags.sortDir, "sort-dir", "", "asc or desc")
	rootCmd.AddCommand(exportCmd)
}
