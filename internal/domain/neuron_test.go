package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseNeuronID(t *testing.T) {
	id, err := ParseNeuronID(" 10045 ")
	require.NoError(t, err)
	assert.Equal(t, NeuronID(10045), id)

	id, err = ParseNeuronID("648518346486614449.0")
	require.NoError(t, err)
	assert.Equal(t, NeuronID(648518346486614449), id)

	for _, raw := range []string{"", "NotAssigned", "nan", "None", "-4", "0", "abc"} {
		_, err := ParseNeuronID(raw)
		assert.ErrorIs(t, err, ErrInvalidNeuronID, raw)
	}
}

func TestSpaceOf(t *testing.T) {
	assert.Equal(t, SpaceMANC, SpaceOf(10045))
	assert.Equal(t, SpaceMANC, SpaceOf(999999999999))
	assert.Equal(t, SpaceFANC, SpaceOf(1000000000000))
	assert.Equal(t, SpaceFANC, SpaceOf(648518346486614449))
}

func TestPartnerTablePartners(t *testing.T) {
	table := PartnerTable{Rows: []Connection{{Partner: 3}, {Partner: 1}}}
	assert.Equal(t, []NeuronID{3, 1}, table.Partners())
	assert.False(t, table.Empty())
	assert.True(t, PartnerTable{}.Empty())
}
