package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewCandidateDefaultsMissingFields(t *testing.T) {
	c := NewCandidate("rarbg", "", "", -3, 1073741824)

	assert.Equal(t, "No Title [rarbg]", c.Title)
	assert.Equal(t, NoLink, c.Link)
	assert.Equal(t, 0, c.Seeders)
	assert.Equal(t, "1.00 GB", c.SizeDisplay())
}

func TestFormatSize(t *testing.T) {
	cases := map[uint64]string{
		0:                  "0.00 GB",
		536870912:          "0.50 GB",
		1073741824:         "1.00 GB",
		3 * 1073741824 / 2: "1.50 GB",
	}
	for size, want := range cases {
		assert.Equal(t, want, FormatSize(size), "size=%d", size)
	}
}

func TestCandidateTitleCarriesIndexer(t *testing.T) {
	c := NewCandidate("1337x", "  Big Buck Bunny 1080p ", "magnet:?xt=urn:btih:abc", 12, 0)
	assert.Equal(t, "Big Buck Bunny 1080p [1337x]", c.Title)
	assert.Equal(t, IndexerID("1337x"), c.Indexer)
}
