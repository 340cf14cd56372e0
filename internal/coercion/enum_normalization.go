package coercion

import "strings"

// These tables are carried verbatim from
// original_source/core/field_coercion_registry.py. The functions that
// consumed them (coerce_workflow_definition,
// validate_workflow_service_field_rules) were not present anywhere in the
// retrieved source — only these constant tables survived the
// distillation — so the behavior built on top of them here follows spec
// §4.4's prose rather than a ported function body.

// HomologyPrecomputedDatabases is the allowlist for db_precomputed_database
// when db_source == "precomputed_database".
var HomologyPrecomputedDatabases = map[string]bool{
	"bacteria-archaea": true,
	"viral-reference":  true,
}

// HomologyPrecomputedDBAliases maps lowercase/alias spellings to the
// canonical allowlisted value.
var HomologyPrecomputedDBAliases = map[string]string{
	"patric":           "bacteria-archaea",
	"bacteria_archaea":  "bacteria-archaea",
	"bacteria archaea":  "bacteria-archaea",
	"viral_reference":   "viral-reference",
	"viral reference":   "viral-reference",
}

// CGAInputTypes, CGARecipes, CGADomains, CGACodes are
// ComprehensiveGenomeAnalysis's enum allowlists.
var CGAInputTypes = map[string]bool{"reads": true, "contigs": true, "genbank": true}

var CGARecipes = map[string]bool{
	"auto": true, "unicycler": true, "canu": true, "spades": true,
	"meta-spades": true, "plasmid-spades": true, "single-cell": true, "flye": true,
}

var CGADomains = map[string]bool{"Bacteria": true, "Archaea": true, "Viruses": true, "auto": true}

var CGACodes = map[int]bool{0: true, 1: true, 4: true, 11: true, 25: true}

// CGAInputTypeAliases normalizes lowercase/alias spellings of input_type.
var CGAInputTypeAliases = map[string]string{
	"read":      "reads",
	"reads":     "reads",
	"raw_reads": "reads",
	"fastq":     "reads",
	"contig":    "contigs",
	"contigs":   "contigs",
	"assembled_contigs": "contigs",
	"contig_file":       "contigs",
	"genbank":      "genbank",
	"gbk":          "genbank",
	"genbank_file": "genbank",
}

// CGARecipeAliases normalizes lowercase/alias spellings of recipe.
var CGARecipeAliases = map[string]string{
	"meta_flye":      "flye",
	"meta-flye":      "flye",
	"metaflye":       "flye",
	"single_cell":    "single-cell",
	"meta_spades":    "meta-spades",
	"plasmid_spades": "plasmid-spades",
}

// CGADomainAliases normalizes lowercase/alias spellings of domain.
var CGADomainAliases = map[string]string{
	"bacteria":  "Bacteria",
	"bacterial": "Bacteria",
	"archaea":   "Archaea",
	"archaeal":  "Archaea",
	"virus":     "Viruses",
	"viruses":   "Viruses",
	"viral":     "Viruses",
	"auto":      "auto",
}

// CGACodeAliases maps a handful of human-readable genetic-code
// descriptions to their numeric code, verbatim from the source table.
var CGACodeAliases = map[string]int{
	"bacterial, archaeal and plant plastid code": 11,
	"mold, protozoan, coelenterate mitochondrial and mycoplasma/spiroplasma code": 4,
	"candidate division sr1 and gracilibacteria code":                            25,
}

// NormalizeHomologyPrecomputedDB normalizes a db_precomputed_database value
// to its canonical allowlisted form, if it maps to one.
func NormalizeHomologyPrecomputedDB(value string) string {
	return normalizeViaAlias(value, HomologyPrecomputedDBAliases)
}

// NormalizeCGAInputType normalizes a CGA input_type value.
func NormalizeCGAInputType(value string) string {
	return normalizeViaAlias(value, CGAInputTypeAliases)
}

// NormalizeCGARecipe normalizes a CGA recipe value.
func NormalizeCGARecipe(value string) string {
	return normalizeViaAlias(value, CGARecipeAliases)
}

// NormalizeCGADomain normalizes a CGA domain value.
func NormalizeCGADomain(value string) string {
	return normalizeViaAlias(value, CGADomainAliases)
}

// NormalizeCGACode maps a human-readable genetic-code description to its
// canonical numeric code, if value matches one of CGACodeAliases.
func NormalizeCGACode(value string) (int, bool) {
	code, ok := CGACodeAliases[strings.ToLower(strings.TrimSpace(value))]
	return code, ok
}

func normalizeViaAlias(value string, aliases map[string]string) string {
	if canonical, ok := aliases[strings.ToLower(value)]; ok {
		return canonical
	}
	return value
}
