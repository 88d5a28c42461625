package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/admissions-hub/admissions-hub/internal/application/command"
	"github.com/admissions-hub/admissions-hub/internal/domain/admission"
	"github.com/admissions-hub/admissions-hub/internal/infrastructure/persistence/memory"
)

func newMatchCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "match",
		Short: "Run the matching engine over a snapshot file",
		Long: `match loads programs and applications from a YAML or JSON snapshot, runs
the multi-round matching engine in memory and prints the final statuses.
Nothing is written back to the snapshot.`,
		Example: `  admissionsctl match --input snapshot.yaml
  admissionsctl match --input snapshot.json --max-rounds 3 -o json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			format, err := c.output()
			if err != nil {
				return err
			}
			snapshot, err := loadSnapshot(c.v.GetString("match.input"))
			if err != nil {
				return err
			}
			result, err := runOffline(cmd.Context(), snapshot, c.v.GetInt("match.max-rounds"), c)
			if err != nil {
				return err
			}
			if format == outputJSON {
				return writeJSON(cmd.OutOrStdout(), result)
			}
			_, err = fmt.Fprint(cmd.OutOrStdout(), renderMatchReport(result))
			return err
		},
	}

	cmd.Flags().StringP("input", "i", "", "snapshot file (.yaml, .yml or .json)")
	cmd.Flags().Int("max-rounds", admission.DefaultMaxRounds, "round limit of the run")
	_ = c.v.BindPFlag("match.input", cmd.Flags().Lookup("input"))
	_ = c.v.BindPFlag("match.max-rounds", cmd.Flags().Lookup("max-rounds"))
	return cmd
}

// matchResult - то, что печатает команда match.
type matchResult struct {
	Run      *admission.Run          `json:"run"`
	Programs []admission.Program     `json:"programs"`
	Final    []admission.Application `json:"applications"`
	Outcome  *admission.Outcome      `json:"outcome,omitempty"`
}

// loadSnapshot читает снимок; формат определяется расширением файла.
func loadSnapshot(path string) (admission.Snapshot, error) {
	var snapshot admission.Snapshot
	if path == "" {
		return snapshot, fmt.Errorf("--input is required")
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return snapshot, fmt.Errorf("read snapshot: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		err = json.Unmarshal(raw, &snapshot)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(raw, &snapshot)
	default:
		return snapshot, fmt.Errorf("unsupported snapshot format %q", filepath.Ext(path))
	}
	if err != nil {
		return snapshot, fmt.Errorf("parse snapshot %s: %w", path, err)
	}
	return snapshot, nil
}

// runOffline прогоняет снимок через тот же обработчик, что и API,
// поверх хранилища в памяти.
func runOffline(ctx context.Context, snapshot admission.Snapshot, maxRounds int, c *cli) (*matchResult, error) {
	for i := range snapshot.Programs {
		if !snapshot.Programs[i].IsManuallyConfigured() {
			snapshot.Programs[i].RefreshCriteria()
		}
	}
	store := memory.NewStore()
	if err := store.LoadSnapshot(snapshot); err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}

	log := c.logger(os.Stderr)
	handler := command.NewRunMatchingHandler(
		store.Applications(), store.Programs(), store.Runs(), store.Lock(), nil,
		admission.NewMatcher(admission.MatcherConfig{MaxRounds: maxRounds}),
		log,
	)
	res, err := handler.Handle(ctx, command.RunMatchingCommand{Trigger: admission.TriggerCLI})
	if err != nil {
		return nil, err
	}

	out := &matchResult{Run: res.Run, Programs: snapshot.Programs, Outcome: res.Outcome}
	if res.Outcome != nil {
		out.Final = res.Outcome.Applications
	}
	return out, nil
}
