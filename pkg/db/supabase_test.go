package db

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedCounter struct {
	n   int64
	err error
}

func (f fixedCounter) CountREST(table string) (int64, error) {
	return f.n, f.err
}

func TestCheckRESTVisibility(t *testing.T) {
	// Test Case 1: every row visible
	n, err := checkRESTVisibility(fixedCounter{n: 12}, "sources", 12)
	require.NoError(t, err)
	assert.EqualValues(t, 12, n)

	// Test Case 2: row level security hides the catalog
	_, err = checkRESTVisibility(fixedCounter{n: 0}, "sources", 12)
	assert.ErrorIs(t, err, ErrRowsHidden)

	// Test Case 3: no API key configured
	_, err = checkRESTVisibility(fixedCounter{err: ErrNoSDK}, "sources", 12)
	assert.NoError(t, err)

	// Test Case 4: the REST call itself fails
	_, err = checkRESTVisibility(fixedCounter{err: errors.New("401 invalid api key")}, "sources", 12)
	assert.ErrorContains(t, err, "invalid api key")
}

func TestSupabaseClient_CountRESTWithoutKey(t *testing.T) {
	_, err := NewSupabaseClient(SupabaseConfig{}).CountREST("sources")
	assert.ErrorIs(t, err, ErrNoSDK)
}
