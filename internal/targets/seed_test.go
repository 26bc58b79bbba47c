package targets

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/sellerguard/internal/monitor"
	"github.com/JakeFAU/sellerguard/internal/storage/memory"
)

const sample = `
targets:
  - url: https://sellercentral.example.com/fees
    display_name: Seller Fees
    priority: HIGH
    keywords: [fee, " penalty ", ""]
  - url: https://sellercentral.example.com/returns
    keywords: [refund]
    active: false
`

func TestParse(t *testing.T) {
	t.Parallel()

	got, err := Parse(strings.NewReader(sample))
	require.NoError(t, err)
	require.Len(t, got, 2)

	require.Equal(t, monitor.Target{
		URL:         "https://sellercentral.example.com/fees",
		DisplayName: "Seller Fees",
		Priority:    monitor.PriorityHigh,
		Keywords:    []string{"fee", " penalty "},
		Active:      true,
	}, got[0])
	require.Equal(t, monitor.PriorityMedium, got[1].Priority)
	require.False(t, got[1].Active)
}

func TestParse_Empty(t *testing.T) {
	t.Parallel()

	got, err := Parse(strings.NewReader(""))
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestParse_Rejects(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"relative url":  "targets:\n  - url: /fees\n",
		"bad scheme":    "targets:\n  - url: ftp://example.com/fees\n",
		"bad priority":  "targets:\n  - url: https://example.com\n    priority: urgent\n",
		"duplicate url": "targets:\n  - url: https://example.com\n  - url: https://example.com\n",
		"unknown field": "targets:\n  - url: https://example.com\n    schedule: hourly\n",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			_, err := Parse(strings.NewReader(doc))
			require.Error(t, err)
		})
	}
}

func TestLoadFileAndSeed(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "targets.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o600))

	parsed, err := LoadFile(path)
	require.NoError(t, err)

	store := memory.NewTargetStore(nil)
	ctx := context.Background()
	n, err := Seed(ctx, store, parsed, nil)
	require.NoError(t, err)
	require.Equal(t, 2, n)

	// Seeding again updates in place.
	_, err = Seed(ctx, store, parsed, nil)
	require.NoError(t, err)

	active, err := store.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	require.Equal(t, int64(1), active[0].ID)
}

func TestLoadFile_Missing(t *testing.T) {
	t.Parallel()

	_, err := LoadFile(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

type failingStore struct{ monitor.TargetStore }

func (failingStore) Upsert(context.Context, monitor.Target) (monitor.Target, error) {
	return monitor.Target{}, errors.New("db down")
}

func TestSeed_StopsOnError(t *testing.T) {
	t.Parallel()

	n, err := Seed(context.Background(), failingStore{}, []monitor.Target{{URL: "https://example.com"}}, nil)
	require.ErrorContains(t, err, "db down")
	require.Zero(t, n)
}
