package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/matthewbaird/valuation/internal/catalog"
	"github.com/matthewbaird/valuation/internal/derive"
	"github.com/matthewbaird/valuation/internal/form"
)

var catalogFile string

var flattenCmd = &cobra.Command{
	Use:   "flatten <file>",
	Short: "Convert a nested valuation record to flat form keys",
	Long:  "Reads a nested record (JSON or YAML, '-' for stdin) and prints the flat record as JSON.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		mapper, err := loadMapper()
		if err != nil {
			return err
		}
		var nested form.NestedRecord
		if err := readRecord(cmd, args[0], &nested); err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), mapper.Flatten(nested))
	},
}

var nestCmd = &cobra.Command{
	Use:   "nest <file>",
	Short: "Convert a flat record to the nested valuation layout",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		mapper, err := loadMapper()
		if err != nil {
			return err
		}
		var flat form.FlatRecord
		if err := readRecord(cmd, args[0], &flat); err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), mapper.Nest(flat))
	},
}

var recomputeCmd = &cobra.Command{
	Use:   "recompute <file>",
	Short: "Recompute every derived value of a flat record",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var flat form.FlatRecord
		if err := readRecord(cmd, args[0], &flat); err != nil {
			return err
		}
		flat = derive.Recompute(flat)
		return printJSON(cmd.OutOrStdout(), struct {
			Record     form.FlatRecord `json:"record"`
			GrandTotal string          `json:"grand_total"`
		}{flat, derive.GrandTotal(flat)})
	},
}

var (
	catalogGroup  string
	catalogSource bool
)

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "List the field catalog, or the leaves of one group",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		c, err := loadCatalog()
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()

		if catalogSource {
			src, err := catalogSourceBytes()
			if err != nil {
				return err
			}
			_, err = out.Write(src)
			return err
		}

		if catalogGroup != "" {
			leaves := c.LeavesOfGroup(catalogGroup)
			if len(leaves) == 0 {
				return fmt.Errorf("unknown group %q", catalogGroup)
			}
			for _, k := range leaves {
				fmt.Fprintln(out, k)
			}
			return nil
		}

		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "FLAT KEY\tPATH\tKIND\tALIAS OF")
		for _, e := range c.Entries() {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", e.FlatKey, e.Path, e.Kind, e.AliasOf)
		}
		return tw.Flush()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&catalogFile, "catalog", "", "CUE catalog file to use instead of the built-in one")
	catalogCmd.Flags().StringVarP(&catalogGroup, "group", "g", "", "dot-separated group path, e.g. siteDetails.boundaries")
	catalogCmd.Flags().BoolVar(&catalogSource, "source", false, "print the CUE source of the catalog in use")
}

func loadCatalog() (*catalog.Catalog, error) {
	if catalogFile == "" {
		return catalog.Default(), nil
	}
	src, err := os.ReadFile(catalogFile)
	if err != nil {
		return nil, fmt.Errorf("reading catalog: %w", err)
	}
	return catalog.Load(src)
}

func catalogSourceBytes() ([]byte, error) {
	if catalogFile == "" {
		return catalog.Source(), nil
	}
	return os.ReadFile(catalogFile)
}

func loadMapper() (*form.Mapper, error) {
	c, err := loadCatalog()
	if err != nil {
		return nil, err
	}
	return form.NewMapper(c), nil
}

// readRecord decodes path into v. YAML is chosen by file extension; stdin
// and everything else is read as JSON.
func readRecord(cmd *cobra.Command, path string, v any) error {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, v)
	default:
		err = json.Unmarshal(data, v)
	}
	if err != nil {
		return fmt.Errorf("decoding %s: %w", path, err)
	}
	return nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
