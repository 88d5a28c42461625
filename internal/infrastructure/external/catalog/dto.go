// Package catalog implements the Parcoursup open data catalog client.
// This package handles all communication with the public records API of
// data.enseignementsup-recherche.gouv.fr: listing programs and looking up
// a single program by record id.
package catalog

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// ══════════════════════════════════════════════════════════════════════════════
// API RESPONSE WRAPPERS
// ══════════════════════════════════════════════════════════════════════════════

// SearchResponseDTO is the envelope returned by /api/records/1.0/search/.
type SearchResponseDTO struct {
	NHits   int         `json:"nhits"`
	Records []RecordDTO `json:"records"`
}

// RecordDTO is one dataset record.
type RecordDTO struct {
	// RecordID is the stable identifier of the program in the dataset
	RecordID string `json:"recordid"`

	// DatasetID is the dataset the record belongs to
	DatasetID string `json:"datasetid,omitempty"`

	Fields ProgramFieldsDTO `json:"fields"`
}

// APIErrorDTO is the error body returned by the portal.
type APIErrorDTO struct {
	ErrorCode int    `json:"errorcode,omitempty"`
	Message   string `json:"error"`
	Status    int    `json:"-"`
}

// Error implements the error interface.
func (e *APIErrorDTO) Error() string {
	return "catalog api: " + e.Message
}

// ══════════════════════════════════════════════════════════════════════════════
// PROGRAM FIELDS
// ══════════════════════════════════════════════════════════════════════════════

// ProgramFieldsDTO holds the Parcoursup columns we read. Field names follow
// the dataset schema.
type ProgramFieldsDTO struct {
	// Label of the program (libellé de la formation)
	Label string `json:"lib_for_voe_ins"`

	// Institution name
	Institution string `json:"g_ea_lib_vx"`

	// Filiere is the program family, e.g. "BUT", "CPGE", "Licence"
	Filiere string `json:"fili"`

	City       string `json:"ville_etab"`
	Department string `json:"lib_dep"`
	Region     string `json:"region_etab_aff"`

	// RegionShort is the older column name, still present in some exports
	RegionShort string `json:"region,omitempty"`

	// Contract is the institution status, e.g. "Public"
	Contract string `json:"contrat_etab"`

	// AdmissionRate is the share of applicants who received an offer (percent)
	AdmissionRate FlexFloat `json:"taux_acces_ens"`

	// SelectivityMarker is free text ("formation sélective", ...)
	SelectivityMarker string `json:"select_form"`

	Capacity   FlexFloat `json:"capa_fin"`
	Applicants FlexFloat `json:"voe_tot"`
	Proposals  FlexFloat `json:"prop_tot"`

	// NeedBasedShare is the share of need-based admits (percent)
	NeedBasedShare FlexFloat `json:"pct_bours"`

	// Location is [latitude, longitude]
	Location []float64 `json:"g_olocalisation_des_formations,omitempty"`
}

// ══════════════════════════════════════════════════════════════════════════════
// FLEXIBLE NUMBERS
// ══════════════════════════════════════════════════════════════════════════════

// FlexFloat decodes numbers the portal sometimes publishes as strings
// ("12,5", "" or "NC"). Valid is false when the value is absent or unparseable.
type FlexFloat struct {
	Value float64
	Valid bool
}

// UnmarshalJSON implements json.Unmarshaler.
func (f *FlexFloat) UnmarshalJSON(data []byte) error {
	*f = FlexFloat{}
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}
	if data[0] != '"' {
		var v float64
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		*f = FlexFloat{Value: v, Valid: true}
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", ".")
	if v, err := strconv.ParseFloat(s, 64); err == nil {
		*f = FlexFloat{Value: v, Valid: true}
	}
	return nil
}

// Float64 returns the value as a pointer, nil when absent.
func (f FlexFloat) Float64() *float64 {
	if !f.Valid {
		return nil
	}
	v := f.Value
	return &v
}

// Int returns the value truncated to an int, 0 when absent.
func (f FlexFloat) Int() int {
	if !f.Valid {
		return 0
	}
	return int(f.Value)
}
