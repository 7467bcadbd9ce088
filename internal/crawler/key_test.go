package crawler

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestProductKeyIsStable(t *testing.T) {
	t.Parallel()

	a := ProductKey("https://Shop.Example/Catalog?page=2", "Vintage Camera")
	b := ProductKey("https://shop.example/catalog?page=7#top", "Vintage Camera")
	require.Equal(t, a, b, "query, fragment and case of origin+path must not change the key")
	require.Len(t, a, 64)

	require.NotEqual(t, a, ProductKey("https://shop.example/catalog", "Vintage Lens"))
	require.NotEqual(t, a, ProductKey("https://other.example/catalog", "Vintage Camera"))
}

func TestRecordKeyMatchesProductKey(t *testing.T) {
	rec := ScrapedRecord{SourceURL: "https://shop.example/a", Title: "Lamp"}
	require.Equal(t, ProductKey("https://shop.example/a", "Lamp"), rec.Key())
}

func TestRecordIDTruncated(t *testing.T) {
	id := RecordID("Lamp", "https://shop.example/a")
	require.Len(t, id, 16)
	require.Equal(t, id, RecordID("Lamp", "https://shop.example/a"))
}
