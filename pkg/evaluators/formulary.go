// Package evaluators provides the reference safety evaluators: identity
// verification, allergy and interaction checking, controlled-substance
// classification and drug-name disambiguation. Each one implements
// ports.Evaluator (or ports.Resolver) over static clinical tables;
// production deployments swap in connectors to real clinical systems.
package evaluators

import "strings"

// DrugInfo is one formulary entry.
type DrugInfo struct {
	Name        string
	Class       string
	Ingredients []string
	// Schedule is the DEA schedule ("II".."V"), empty for non-controlled.
	Schedule string
	// MinDoseMg and MaxDoseMg bound the dispensable strength in mg.
	// Both zero means no range is configured.
	MinDoseMg float64
	MaxDoseMg float64
}

// Formulary is the drug index shared by the evaluators, keyed by
// lowercase drug name.
type Formulary map[string]DrugInfo

// Lookup finds a drug by name, case-insensitive.
func (f Formulary) Lookup(name string) (DrugInfo, bool) {
	info, ok := f[strings.ToLower(strings.TrimSpace(name))]
	return info, ok
}

// Names returns all formulary drug names.
func (f Formulary) Names() []string {
	names := make([]string, 0, len(f))
	for _, info := range f {
		names = append(names, info.Name)
	}
	return names
}

// DefaultFormulary returns a small built-in formulary used by the
// reference evaluators and in tests.
func DefaultFormulary() Formulary {
	drugs := []DrugInfo{
		{Name: "Lisinopril", Class: "ACE inhibitor", Ingredients: []string{"lisinopril"}, MinDoseMg: 2.5, MaxDoseMg: 40},
		{Name: "Losartan", Class: "ARB", Ingredients: []string{"losartan"}, MinDoseMg: 25, MaxDoseMg: 100},
		{Name: "Atorvastatin", Class: "statin", Ingredients: []string{"atorvastatin"}, MinDoseMg: 10, MaxDoseMg: 80},
		{Name: "Metformin", Class: "biguanide", Ingredients: []string{"metformin"}, MinDoseMg: 500, MaxDoseMg: 2000},
		{Name: "Amoxicillin", Class: "penicillin", Ingredients: []string{"amoxicillin"}, MinDoseMg: 250, MaxDoseMg: 875},
		{Name: "Warfarin", Class: "anticoagulant", Ingredients: []string{"warfarin"}, MinDoseMg: 1, MaxDoseMg: 10},
		{Name: "Ibuprofen", Class: "NSAID", Ingredients: []string{"ibuprofen"}, MinDoseMg: 200, MaxDoseMg: 800},
		{Name: "Sertraline", Class: "SSRI", Ingredients: []string{"sertraline"}, MinDoseMg: 25, MaxDoseMg: 200},
		{Name: "Oxycodone", Class: "opioid", Ingredients: []string{"oxycodone"}, Schedule: "II", MinDoseMg: 5, MaxDoseMg: 30},
		{Name: "Ketamine", Class: "anesthetic", Ingredients: []string{"ketamine"}, Schedule: "III", MinDoseMg: 10, MaxDoseMg: 200},
		{Name: "Alprazolam", Class: "benzodiazepine", Ingredients: []string{"alprazolam"}, Schedule: "IV", MinDoseMg: 0.25, MaxDoseMg: 4},
	}
	f := make(Formulary, len(drugs))
	for _, d := range drugs {
		f[strings.ToLower(d.Name)] = d
	}
	return f
}

// PatientRecord is the directory entry the evaluators consult.
type PatientRecord struct {
	MRN               string
	Allergies         []string
	ActiveMedications []string
}

// Directory maps MRN to patient record.
type Directory map[string]PatientRecord

// DefaultDirectory returns a small built-in patient directory used by
// the reference evaluators and in tests.
func DefaultDirectory() Directory {
	return Directory{
		"123456": {MRN: "123456", Allergies: nil, ActiveMedications: []string{"Atorvastatin"}},
		"234567": {MRN: "234567", Allergies: []string{"penicillin"}, ActiveMedications: []string{"Metformin"}},
		"345678": {MRN: "345678", Allergies: nil, ActiveMedications: []string{"Warfarin"}},
		"456789": {MRN: "456789", Allergies: []string{"ibuprofen"}, ActiveMedications: []string{"Sertraline", "Lisinopril"}},
	}
}

// Lookup finds a patient by MRN.
func (d Directory) Lookup(mrn string) (PatientRecord, bool) {
	rec, ok := d[mrn]
	return rec, ok
}
