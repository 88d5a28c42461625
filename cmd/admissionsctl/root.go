package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	outputTable = "table"
	outputJSON  = "json"
)

// configPaths - файлы конфигурации, проверяемые по порядку.
var configPaths = []string{".admissionsrc.yaml", ".admissionsrc.yml"}

// cli хранит общие флаги и конфигурацию одного запуска.
type cli struct {
	v       *viper.Viper
	cfgFile string
}

func newRootCmd() *cobra.Command {
	c := &cli{v: viper.New()}

	root := &cobra.Command{
		Use:   "admissionsctl",
		Short: "Operator tools for the admissions matching engine",
		Long: `admissionsctl runs the matching engine offline over a snapshot file and
shows the admission criteria derived from catalog attributes. It also
manages the database schema.

Settings are read from flags, ADMISSIONS_* environment variables and
.admissionsrc.yaml, in that order of precedence.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.initConfig()
		},
	}

	root.PersistentFlags().StringVar(&c.cfgFile, "config", "", "config file (default .admissionsrc.yaml)")
	root.PersistentFlags().StringP("output", "o", outputTable, "output format (table|json)")
	root.PersistentFlags().BoolP("verbose", "v", false, "log engine progress to stderr")
	_ = c.v.BindPFlag("output", root.PersistentFlags().Lookup("output"))
	_ = c.v.BindPFlag("verbose", root.PersistentFlags().Lookup("verbose"))

	root.AddCommand(newMatchCmd(c), newCriteriaCmd(c), newMigrateCmd(c))
	return root
}

func (c *cli) initConfig() error {
	c.v.SetEnvPrefix("ADMISSIONS")
	c.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	c.v.AutomaticEnv()

	path := c.cfgFile
	if path == "" {
		for _, candidate := range configPaths {
			if _, err := os.Stat(candidate); err == nil {
				path = candidate
				break
			}
		}
	}
	if path == "" {
		return nil
	}
	c.v.SetConfigFile(path)
	if err := c.v.ReadInConfig(); err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	return nil
}

func (c *cli) output() (string, error) {
	switch out := strings.ToLower(c.v.GetString("output")); out {
	case outputTable, outputJSON:
		return out, nil
	default:
		return "", fmt.Errorf("unknown output format %q (want table or json)", out)
	}
}

// logger пишет в stderr только с --verbose.
func (c *cli) logger(stderr io.Writer) *slog.Logger {
	if !c.v.GetBool("verbose") {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
}
