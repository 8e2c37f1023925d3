package router

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ensembl-io/handover/internal/handoverspec"
)

func TestClassify_Species(t *testing.T) {
	c, err := Classify("homo_sapiens_core_110_38")

	require.NoError(t, err)
	assert.Equal(t, handoverspec.DBTypeCore, c.DBType)
	assert.Equal(t, "homo_sapiens", c.Prefix)
	assert.Equal(t, 110, c.Release)
	assert.Equal(t, "38", c.Assembly)
}

func TestClassify_SpeciesGRCh37(t *testing.T) {
	c, err := Classify("homo_sapiens_core_110_37")

	require.NoError(t, err)
	assert.True(t, c.IsGRCh37Assembly())
}

func TestClassify_SpeciesVariation(t *testing.T) {
	c, err := Classify("mus_musculus_variation_110_39")

	require.NoError(t, err)
	assert.Equal(t, handoverspec.DBTypeVariation, c.DBType)
	assert.Equal(t, "mus_musculus", c.Prefix)
}

func TestClassify_ComparaDefaultDivision(t *testing.T) {
	c, err := Classify("ensembl_compara_110")

	require.NoError(t, err)
	assert.Equal(t, handoverspec.DBTypeCompara, c.DBType)
	assert.Equal(t, handoverspec.DivisionVertebrates, c.Division)
	assert.Equal(t, 110, c.Release)
}

func TestClassify_ComparaWithDivision(t *testing.T) {
	c, err := Classify("ensembl_compara_plants_57_110")

	require.NoError(t, err)
	assert.Equal(t, handoverspec.DBTypeCompara, c.DBType)
	assert.Equal(t, handoverspec.DivisionPlants, c.Division)
}

func TestClassify_ComparaHomology(t *testing.T) {
	c, err := Classify("ensembl_compara_metazoa_homology_57_110")

	require.NoError(t, err)
	assert.Equal(t, handoverspec.DivisionMetazoa, c.Division)
}

func TestClassify_AncestralDefaultDivision(t *testing.T) {
	c, err := Classify("ensembl_ancestral_110")

	require.NoError(t, err)
	assert.Equal(t, handoverspec.DBTypeAncestral, c.DBType)
	assert.Equal(t, handoverspec.DivisionVertebrates, c.Division)
}

func TestClassify_AncestralWithDivision(t *testing.T) {
	c, err := Classify("ensembl_ancestral_fungi_110")

	require.NoError(t, err)
	assert.Equal(t, handoverspec.DivisionFungi, c.Division)
}

func TestClassify_Invalid(t *testing.T) {
	_, err := Classify("not_a_recognized_shape")

	require.ErrorIs(t, err, ErrInvalidDatabaseName)
}

func TestClassify_FirstMatchWins(t *testing.T) {
	// A compara-shaped name must never fall through to the species
	// pattern even though "compara" is not in the species type set.
	c, err := Classify("ensembl_compara_bacteria_110")

	require.NoError(t, err)
	assert.Equal(t, handoverspec.DBTypeCompara, c.DBType)
}

func TestIsBacteria(t *testing.T) {
	assert.True(t, IsBacteria("bacteria_0_collection_core_57_110_1"))
	assert.False(t, IsBacteria("homo_sapiens_core_110_38"))
}
