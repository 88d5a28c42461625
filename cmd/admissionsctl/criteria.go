package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/admissions-hub/admissions-hub/internal/domain/admission"
)

func newCriteriaCmd(c *cli) *cobra.Command {
	var attrs admission.CatalogAttributes
	var rate float64

	cmd := &cobra.Command{
		Use:   "criteria",
		Short: "Show the admission criteria derived from catalog attributes",
		Example: `  admissionsctl criteria --filiere CPGE --label "CPGE - MPSI"
  admissionsctl criteria --filiere Licence --label "Licence - Droit" --rate 25`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			format, err := c.output()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("rate") {
				attrs.AdmissionRate = admission.RatePtr(rate)
			}

			view := newCriteriaView(attrs)
			if format == outputJSON {
				return writeJSON(cmd.OutOrStdout(), view)
			}
			_, err = fmt.Fprint(cmd.OutOrStdout(), renderCriteria(view))
			return err
		},
	}

	cmd.Flags().StringVar(&attrs.Filiere, "filiere", "", "program track, e.g. BUT, CPGE, Licence")
	cmd.Flags().StringVar(&attrs.Label, "label", "", "program label")
	cmd.Flags().Float64Var(&rate, "rate", 0, "admission rate in percent")
	cmd.Flags().StringVar(&attrs.SelectivityMarker, "marker", "", "selectivity marker text")
	return cmd
}

// criteriaView - критерии вместе с атрибутами, из которых они выведены.
type criteriaView struct {
	Attributes  admission.CatalogAttributes `json:"attributes"`
	Fingerprint string                      `json:"fingerprint"`
	Criteria    admission.Criteria          `json:"criteria"`
	Tier        admission.Tier              `json:"effective_tier"`
	Minimum     float64                     `json:"effective_minimum"`
}

func newCriteriaView(attrs admission.CatalogAttributes) criteriaView {
	cr := admission.ResolveCriteria(attrs)
	return criteriaView{
		Attributes:  attrs,
		Fingerprint: attrs.Fingerprint(),
		Criteria:    cr,
		Tier:        cr.EffectiveTier(),
		Minimum:     cr.EffectiveMinimum(),
	}
}
