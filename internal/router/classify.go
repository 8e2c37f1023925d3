package router

import (
	"regexp"
	"strconv"

	"github.com/ensembl-io/handover/internal/handoverspec"
)

// Classification is the result of parsing a database name into its
// constituent parts (spec.md §4.1).
type Classification struct {
	// DBType is the database's category (core, rnaseq, compara, ...).
	DBType handoverspec.DBType

	// Prefix is the species name for per-species databases (core/rnaseq/
	// cdna/otherfeatures/variation/funcgen); empty for compara/ancestral.
	Prefix string

	// Division is set for compara and ancestral databases, which are
	// shared across a whole taxonomic division rather than one species.
	// Defaults to "vertebrates" when the name omits it.
	Division handoverspec.Division

	// Release is the numeric Ensembl release embedded in the name.
	Release int

	// Assembly is the genome-build token carried by species databases
	// only; "37" marks the GRCh37 legacy assembly (spec.md §4.1 "Staging
	// selection").
	Assembly string
}

// defaultDivision is used when a compara/ancestral name omits its division
// segment (spec.md §4.1 "missing division defaults to vertebrates").
const defaultDivision = handoverspec.DivisionVertebrates

// speciesPattern matches "<prefix>_<type>(_<N>)?_<release>_<assembly>"
// (spec.md §4.1 "Species").
var speciesPattern = regexp.MustCompile(
	`^(?P<prefix>[a-z0-9]+(?:_[a-z0-9]+)*)_` +
		`(?P<type>core|rnaseq|cdna|otherfeatures|variation|funcgen)` +
		`(?:_\d+)?_(?P<release>\d+)_(?P<assembly>\d+)$`)

// comparaPattern matches "ensembl_compara(_<division>(_homology)?)?(_<N>)?_<release>"
// (spec.md §4.1 "Compara").
var comparaPattern = regexp.MustCompile(
	`^ensembl_compara(?:_(?P<division>vertebrates|plants|metazoa|fungi|protists|bacteria|pan)(?:_homology)?)?` +
		`(?:_\d+)?_(?P<release>\d+)$`)

// ancestralPattern matches "ensembl_ancestral(_<division>)?(_<N>)?_<release>"
// (spec.md §4.1 "Ancestral").
var ancestralPattern = regexp.MustCompile(
	`^ensembl_ancestral(?:_(?P<division>vertebrates|plants|metazoa|fungi|protists|bacteria|pan))?` +
		`(?:_\d+)?_(?P<release>\d+)$`)

// namePatterns are evaluated in order; first match wins (spec.md §4.1
// "Three compiled patterns classify a database name; first match wins").
var namePatterns = []struct {
	regex *regexp.Regexp
	build func(captures map[string]string) (Classification, error)
}{
	{speciesPattern, buildSpeciesClassification},
	{comparaPattern, buildComparaClassification},
	{ancestralPattern, buildAncestralClassification},
}

// Classify parses a raw database name into a Classification. Returns
// ErrInvalidDatabaseName if name matches none of the recognized shapes.
func Classify(name string) (Classification, error) {
	for _, p := range namePatterns {
		match := p.regex.FindStringSubmatch(name)
		if match == nil {
			continue
		}

		return p.build(namedCaptures(p.regex, match))
	}

	return Classification{}, ErrInvalidDatabaseName
}

func namedCaptures(re *regexp.Regexp, match []string) map[string]string {
	captures := make(map[string]string, len(match))

	for i, name := range re.SubexpNames() {
		if i > 0 && name != "" && i < len(match) {
			captures[name] = match[i]
		}
	}

	return captures
}

func buildSpeciesClassification(c map[string]string) (Classification, error) {
	release, err := parseRelease(c["release"])
	if err != nil {
		return Classification{}, err
	}

	return Classification{
		DBType:   handoverspec.DBType(c["type"]),
		Prefix:   c["prefix"],
		Release:  release,
		Assembly: c["assembly"],
	}, nil
}

func buildComparaClassification(c map[string]string) (Classification, error) {
	release, err := parseRelease(c["release"])
	if err != nil {
		return Classification{}, err
	}

	return Classification{
		DBType:   handoverspec.DBTypeCompara,
		Division: divisionOrDefault(c["division"]),
		Release:  release,
	}, nil
}

func buildAncestralClassification(c map[string]string) (Classification, error) {
	release, err := parseRelease(c["release"])
	if err != nil {
		return Classification{}, err
	}

	return Classification{
		DBType:   handoverspec.DBTypeAncestral,
		Division: divisionOrDefault(c["division"]),
		Release:  release,
	}, nil
}

func divisionOrDefault(division string) handoverspec.Division {
	if division == "" {
		return defaultDivision
	}

	return handoverspec.Division(division)
}

func parseRelease(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, ErrInvalidDatabaseName
	}

	return n, nil
}

// IsGRCh37Assembly reports whether a species Classification's assembly is
// the GRCh37 legacy build (spec.md §4.1 "homo_sapiens with assembly == 37").
func (c Classification) IsGRCh37Assembly() bool {
	return c.Prefix == "homo_sapiens" && c.Assembly == "37"
}

// bacteriaPrefix matches database names beginning with "bacteria" (spec.md
// §4.1 "Staging selection": "bacteria* prefixes ... route to secondary").
var bacteriaPrefix = regexp.MustCompile(`^bacteria`)

// IsBacteria reports whether name carries the bacteria* staging prefix.
func IsBacteria(name string) bool {
	return bacteriaPrefix.MatchString(name)
}
