// Package coercion implements the Field-Coercion & Rule Registry (spec
// §4.4): a pure, table-driven transformation applied to a step before
// schema validation — app-id normalization, type coercion, enum
// normalization, and conditional-required rules. There is no per-service
// field-alias table: a param supplied under an alias name is passed
// through unchanged and is not moved to its canonical name.
package coercion

import (
	"strings"

	"github.com/bvbrc/workflow-conductor/internal/validators"
)

// FriendlyToAppID maps user-friendly snake_case service names to the
// canonical BV-BRC AppService id, verbatim from the source's
// FRIENDLY_TO_APP_ID table.
var FriendlyToAppID = map[string]string{
	"date":                            "Date",
	"genome_assembly":                 "GenomeAssembly2",
	"genome_annotation":               "GenomeAnnotation",
	"comprehensive_genome_analysis":   "ComprehensiveGenomeAnalysis",
	"blast":                           "Homology",
	"primer_design":                   "PrimerDesign",
	"variation":                       "Variation",
	"tnseq":                           "TnSeq",
	"bacterial_genome_tree":           "CodonTree",
	"gene_tree":                       "GeneTree",
	"core_genome_mlst":                "CoreGenomeMLST",
	"whole_genome_snp":                "WholeGenomeSNPAnalysis",
	"taxonomic_classification":        "TaxonomicClassification",
	"metagenomic_binning":             "MetagenomeBinning",
	"metagenomic_read_mapping":        "MetagenomicReadMapping",
	"rnaseq":                          "RNASeq",
	"expression_import":               "ExpressionImport",
	"sars_wastewater_analysis":        "SARSWastewaterAnalysis",
	"sequence_submission":             "SequenceSubmission",
	"influenza_ha_subtype_conversion": "InfluenzaHASubtypeConversion",
	"subspecies_classification":       "SubspeciesClassification",
	"viral_assembly":                  "ViralAssembly",
	"genome_alignment":                "GenomeAlignment",
	"sars_genome_analysis":            "SARS2Assembly",
	"msa_snp_analysis":                "MSA",
	"metacats":                        "MetaCATS",
	"proteome_comparison":             "GenomeComparison",
	"comparative_systems":             "ComparativeSystems",
	"docking":                         "Docking",
	"similar_genome_finder":           "SimilarGenomeFinder",
	"fastqutils":                      "FastqUtils",
}

// ExtraAppAliases holds aliases observed in service names/tools beyond the
// friendly-name table, verbatim from the source's EXTRA_APP_ALIASES.
var ExtraAppAliases = map[string]string{
	"hasubtypenumberingconversion": "InfluenzaHASubtypeConversion",
}

// NormalizeAppName converts a step's raw app value into a canonical
// AppService id when it confidently can, mirroring
// WorkflowValidator._normalize_step_app_name: prefer an already-registered
// name, then the friendly-name table, then a case-insensitive exact match
// against known ids, then the extra alias table, then a conservative
// snake_case -> TitleCase conversion gated on resolving to a registered
// target. registry supplies the "is this id already registered" check.
func NormalizeAppName(appName string, registry *validators.Registry) string {
	if appName == "" {
		return appName
	}
	appName = strings.TrimSpace(appName)

	if registry.IsRegistered(appName) {
		return appName
	}

	lower := strings.ToLower(appName)

	if id, ok := FriendlyToAppID[lower]; ok {
		return id
	}

	for _, id := range allKnownAppIDs() {
		if strings.EqualFold(lower, id) {
			return id
		}
	}

	if id, ok := ExtraAppAliases[lower]; ok {
		return id
	}

	if strings.Contains(appName, "_") {
		candidate := snakeToTitle(appName)
		if candidate != "" && registry.IsRegistered(candidate) {
			return candidate
		}
	}

	return appName
}

func allKnownAppIDs() []string {
	ids := make([]string, 0, len(FriendlyToAppID)+len(ExtraAppAliases))
	for _, id := range FriendlyToAppID {
		ids = append(ids, id)
	}
	for _, id := range ExtraAppAliases {
		ids = append(ids, id)
	}
	return ids
}

func snakeToTitle(s string) string {
	parts := strings.Split(s, "_")
	var b strings.Builder
	for _, p := range parts {
		if p == "" {
			continue
		}
		b.WriteString(strings.ToUpper(p[:1]))
		b.WriteString(p[1:])
	}
	return b.String()
}
