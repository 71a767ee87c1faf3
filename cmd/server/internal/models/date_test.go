package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDateJSON(t *testing.T) {
	d, err := ParseDate("2026-11-02")
	require.NoError(t, err)

	b, err := json.Marshal(d)
	require.NoError(t, err)
	assert.Equal(t, `"2026-11-02"`, string(b))

	var back Date
	require.NoError(t, json.Unmarshal(b, &back))
	assert.True(t, back.Equal(d.Time))

	var bad Date
	assert.Error(t, json.Unmarshal([]byte(`"02/11/2026"`), &bad))
}

func TestDateScan(t *testing.T) {
	var d Date
	require.NoError(t, d.Scan(time.Date(2026, 3, 4, 15, 30, 0, 0, time.UTC)))
	assert.Equal(t, "2026-03-04", d.String())

	require.NoError(t, d.Scan("2026-05-06 00:00:00+00:00"))
	assert.Equal(t, "2026-05-06", d.String())

	require.NoError(t, d.Scan([]byte("2026-07-08")))
	assert.Equal(t, "2026-07-08", d.String())

	assert.Error(t, d.Scan(42))
}

func TestDateOf(t *testing.T) {
	loc := time.FixedZone("UTC+8", 8*3600)
	d := DateOf(time.Date(2026, 10, 14, 23, 59, 0, 0, loc))
	assert.Equal(t, "2026-10-14", d.String())
}
