// Package main provides the xltpl command line tool.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/javajack/xltpl"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var (
	dataPath      string
	outputPath    string
	sheetName     string
	password      string
	imageRoot     string
	imageRatio    float64
	moveImages    bool
	sameLine      bool
	allTableRow   bool
	pageBreak     bool
	recalculate   bool
	skipBadImages bool
	verbose       bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "xltpl",
		Short: "Fill xlsx templates with data",
		Long: `xltpl replaces ${...} placeholders in xlsx templates with values
from a YAML or JSON data file, growing tables and rows as needed.`,
		SilenceUsage: true,
	}

	fillCmd := &cobra.Command{
		Use:   "fill TEMPLATE",
		Short: "Substitute placeholders and write the filled workbook",
		Args:  cobra.ExactArgs(1),
		RunE:  runFill,
	}
	fillCmd.Flags().StringVarP(&dataPath, "data", "d", "", "YAML or JSON data file (required)")
	fillCmd.Flags().StringVarP(&outputPath, "output", "o", "", "Output file path (required)")
	fillCmd.Flags().StringVar(&sheetName, "sheet", "", "Substitute only this sheet (default: all sheets)")
	fillCmd.Flags().StringVar(&imageRoot, "image-root", "", "Directory image paths are resolved against")
	fillCmd.Flags().Float64Var(&imageRatio, "image-ratio", 100, "Image scale in percent outside merged cells")
	fillCmd.Flags().BoolVar(&moveImages, "move-images", false, "Move existing images down when table rows are inserted")
	fillCmd.Flags().BoolVar(&sameLine, "move-same-line-images", false, "Also move images anchored on the expanding row")
	fillCmd.Flags().BoolVar(&allTableRow, "substitute-all-table-row", false, "Copy the other cells of a table row onto inserted rows")
	fillCmd.Flags().BoolVar(&pageBreak, "push-down-page-break", false, "Grow print ranges that span inserted rows")
	fillCmd.Flags().BoolVar(&recalculate, "recalculate", false, "Ask Excel to recalculate formulas on open")
	fillCmd.Flags().BoolVar(&skipBadImages, "skip-bad-images", false, "Skip images that cannot be loaded instead of failing")
	_ = fillCmd.MarkFlagRequired("data")
	_ = fillCmd.MarkFlagRequired("output")

	describeCmd := &cobra.Command{
		Use:   "describe TEMPLATE",
		Short: "List the placeholders of a template",
		Args:  cobra.ExactArgs(1),
		RunE:  runDescribe,
	}

	validateCmd := &cobra.Command{
		Use:   "validate TEMPLATE",
		Short: "Check template placeholders for mistakes",
		Args:  cobra.ExactArgs(1),
		RunE:  runValidate,
	}

	rootCmd.PersistentFlags().StringVar(&password, "password", "", "Password of an encrypted template")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log progress to stderr")
	rootCmd.AddCommand(fillCmd, describeCmd, validateCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func commonOptions() []xltpl.Option {
	var opts []xltpl.Option
	if password != "" {
		opts = append(opts, xltpl.WithPassword(password))
	}
	if verbose {
		opts = append(opts, xltpl.WithLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))))
	}
	return opts
}

func runFill(cmd *cobra.Command, args []string) error {
	templatePath := args[0]
	if _, err := os.Stat(templatePath); os.IsNotExist(err) {
		return fmt.Errorf("file not found: %s", templatePath)
	}
	data, err := loadData(dataPath)
	if err != nil {
		return err
	}

	opts := append(commonOptions(),
		xltpl.WithImageRootPath(imageRoot),
		xltpl.WithImageRatio(imageRatio),
		xltpl.WithMoveImages(moveImages),
		xltpl.WithMoveSameLineImages(sameLine),
		xltpl.WithSubstituteAllTableRow(allTableRow),
		xltpl.WithPushDownPageBreak(pageBreak),
		xltpl.WithRecalculateOnOpen(recalculate),
	)
	if skipBadImages {
		opts = append(opts, xltpl.WithImageErrorHandler(func(src any, err error) {
			fmt.Fprintf(cmd.ErrOrStderr(), "warning: image skipped: %v\n", err)
		}))
	}

	wb, err := xltpl.OpenFile(templatePath, opts...)
	if err != nil {
		return err
	}
	if sheetName != "" {
		err = wb.Substitute(sheetName, data)
	} else {
		err = wb.SubstituteAll(data)
	}
	if err != nil {
		return fmt.Errorf("substitution failed: %w", err)
	}
	if err := wb.SaveAs(outputPath); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func runDescribe(cmd *cobra.Command, args []string) error {
	out, err := xltpl.Describe(args[0], commonOptions()...)
	if err != nil {
		return err
	}
	fmt.Fprint(cmd.OutOrStdout(), out)
	return nil
}

func runValidate(cmd *cobra.Command, args []string) error {
	issues, err := xltpl.Validate(args[0], commonOptions()...)
	if err != nil {
		return err
	}
	errorsFound := 0
	for _, issue := range issues {
		fmt.Fprintln(cmd.OutOrStdout(), issue)
		if issue.Severity == xltpl.SeverityError {
			errorsFound++
		}
	}
	if errorsFound > 0 {
		return fmt.Errorf("%d error(s) found", errorsFound)
	}
	if len(issues) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "OK")
	}
	return nil
}

// loadData decodes a YAML or JSON document into a top-level mapping.
func loadData(name string) (map[string]any, error) {
	raw, err := os.ReadFile(name)
	if err != nil {
		return nil, fmt.Errorf("read data file: %w", err)
	}
	var data map[string]any
	if err := yaml.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("parse data file %s: %w", name, err)
	}
	return data, nil
}
