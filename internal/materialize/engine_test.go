package materialize

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finanzas-sd/db"
	"finanzas-sd/db/memory"
	"finanzas-sd/internal/rubro"
	"finanzas-sd/internal/taxonomy"
	finerr "finanzas-sd/pkg/errors"
)

func newTestEngine(t *testing.T, cfg Config) (*Engine, *memory.Store) {
	t.Helper()
	catalog, err := taxonomy.Bundled()
	require.NoError(t, err)
	store := memory.NewStore()
	return NewEngine(store, catalog, cfg, zerolog.Nop()), store
}

func laborBaseline(id string) Baseline {
	line := func(rawID string) EstimateLine {
		return EstimateLine{
			RawID:      rawID,
			Quantity:   decimal.NewFromInt(1),
			UnitCost:   decimal.NewFromInt(5000),
			Recurring:  true,
			StartMonth: 1,
			EndMonth:   12,
		}
	}
	return Baseline{
		BaselineID: id,
		ProjectID:  "P-001",
		AcceptedAt: time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
		Lines:      []EstimateLine{line("MOD-ING"), line("MOD-LEAD"), line("MOD-SDM")},
	}
}

func TestMaterialize_HappyPath(t *testing.T) {
	ctx := context.Background()
	engine, store := newTestEngine(t, Config{})

	res, err := engine.Materialize(ctx, "P-001", laborBaseline("base_A"))
	require.NoError(t, err)
	assert.False(t, res.Skipped)
	assert.Zero(t, res.LinesSkipped)
	assert.Zero(t, res.FallbackCount)
	require.Len(t, res.Rubros, 3)

	assert.Equal(t, "MOD-ING#base_A#1", res.Rubros[0].RubroID)
	assert.Equal(t, "MOD-LEAD#base_A#2", res.Rubros[1].RubroID)
	assert.Equal(t, "MOD-SDM#base_A#3", res.Rubros[2].RubroID)
	for _, r := range res.Rubros {
		assert.Equal(t, "P-001", r.ProjectID)
		assert.Equal(t, "base_A", r.BaselineID)
		assert.Equal(t, "MXN", r.Currency)
		assert.True(t, r.TotalCost.Equal(decimal.NewFromInt(5000)))
	}

	page, err := store.QueryPrefix(ctx, rubro.ProjectPK("P-001"), rubro.RubroPrefix("base_A"), "", 10)
	require.NoError(t, err)
	assert.Len(t, page.Items, 3)

	meta, err := store.Get(ctx, db.Key{Partition: rubro.ProjectPK("P-001"), Sort: rubro.BaselineSK("base_A")})
	require.NoError(t, err)
	require.NotNil(t, meta)
	assert.Equal(t, "accepted", meta["status"])
	assert.Equal(t, 3, meta["line_count"])
}

func TestMaterialize_Idempotent(t *testing.T) {
	ctx := context.Background()
	engine, store := newTestEngine(t, Config{})

	first, err := engine.Materialize(ctx, "P-001", laborBaseline("base_A"))
	require.NoError(t, err)
	require.Len(t, first.Rubros, 3)

	second, err := engine.Materialize(ctx, "P-001", laborBaseline("base_A"))
	require.NoError(t, err)
	assert.True(t, second.Skipped)
	assert.Empty(t, second.Rubros)

	page, err := store.QueryPrefix(ctx, rubro.ProjectPK("P-001"), rubro.RubroPrefix("base_A"), "", 10)
	require.NoError(t, err)
	assert.Len(t, page.Items, 3)
}

func TestMaterialize_BaselinesStayDisjoint(t *testing.T) {
	ctx := context.Background()
	engine, store := newTestEngine(t, Config{})

	_, err := engine.Materialize(ctx, "P-001", laborBaseline("base_A"))
	require.NoError(t, err)
	_, err = engine.Materialize(ctx, "P-001", laborBaseline("base_B"))
	require.NoError(t, err)

	pageA, err := store.QueryPrefix(ctx, rubro.ProjectPK("P-001"), rubro.RubroPrefix("base_A"), "", 10)
	require.NoError(t, err)
	pageB, err := store.QueryPrefix(ctx, rubro.ProjectPK("P-001"), rubro.RubroPrefix("base_B"), "", 10)
	require.NoError(t, err)
	assert.Len(t, pageA.Items, 3)
	assert.Len(t, pageB.Items, 3)

	metaA, err := store.Get(ctx, db.Key{Partition: rubro.ProjectPK("P-001"), Sort: rubro.BaselineSK("base_A")})
	require.NoError(t, err)
	assert.NotNil(t, metaA)
}

func TestMaterialize_LegacyAliasResolved(t *testing.T) {
	ctx := context.Background()
	engine, _ := newTestEngine(t, Config{})

	b := laborBaseline("base_A")
	b.Lines[0].RawID = "LI-001"

	res, err := engine.Materialize(ctx, "P-001", b)
	require.NoError(t, err)
	assert.Equal(t, "MOD-ING", res.Rubros[0].CanonicalCode)
	assert.Zero(t, res.FallbackCount)
}

func TestMaterialize_UnresolvableFallsBackToDefault(t *testing.T) {
	var buf bytes.Buffer
	log := zerolog.New(&buf)
	catalog, err := taxonomy.Bundled()
	require.NoError(t, err)
	engine := NewEngine(memory.NewStore(), catalog, Config{DefaultCanonicalCode: "OTR-VARIOS"}, log)

	b := laborBaseline("base_A")
	b.Lines[1].RawID = "MADE-UP-ID"

	res, err := engine.Materialize(context.Background(), "P-001", b)
	require.NoError(t, err)
	assert.Equal(t, 1, res.FallbackCount)
	assert.Zero(t, res.LinesSkipped)
	assert.Equal(t, "OTR-VARIOS", res.Rubros[1].CanonicalCode)
	assert.Equal(t, "OTR-VARIOS#base_A#2", res.Rubros[1].RubroID)
	assert.Contains(t, buf.String(), "falling back to default canonical code")
}

func TestMaterialize_UnresolvableSkippedWithoutDefault(t *testing.T) {
	ctx := context.Background()
	engine, _ := newTestEngine(t, Config{})

	b := laborBaseline("base_A")
	b.Lines[1].RawID = "MADE-UP-ID"

	res, err := engine.Materialize(ctx, "P-001", b)
	require.NoError(t, err)
	assert.Equal(t, 1, res.LinesSkipped)
	require.Len(t, res.Rubros, 2)
	// Sequence numbering follows the input position, not the surviving count.
	assert.Equal(t, "MOD-SDM#base_A#3", res.Rubros[1].RubroID)
}

func TestMaterialize_InvalidLinesSkipped(t *testing.T) {
	ctx := context.Background()
	engine, _ := newTestEngine(t, Config{})

	b := laborBaseline("base_A")
	b.Lines[0].Quantity = decimal.Zero
	b.Lines[1].EndMonth = 0
	b.Lines = append(b.Lines, EstimateLine{
		RawID:      "MOD-QA",
		Quantity:   decimal.NewFromInt(1),
		UnitCost:   decimal.NewFromInt(100),
		Recurring:  true,
		StartMonth: 8,
		EndMonth:   3,
	})

	res, err := engine.Materialize(ctx, "P-001", b)
	require.NoError(t, err)
	assert.Equal(t, 3, res.LinesSkipped)
	require.Len(t, res.Rubros, 1)
	assert.Equal(t, "MOD-SDM", res.Rubros[0].CanonicalCode)
}

func TestMaterialize_ValidatesIdentifiers(t *testing.T) {
	ctx := context.Background()
	engine, _ := newTestEngine(t, Config{})

	_, err := engine.Materialize(ctx, "", laborBaseline("base_A"))
	assert.True(t, finerr.IsValidation(err))

	_, err = engine.Materialize(ctx, "P-001", Baseline{})
	assert.True(t, finerr.IsValidation(err))
}

func TestMaterialize_ConcurrentWriteSurfacesCollision(t *testing.T) {
	ctx := context.Background()
	catalog, err := taxonomy.Bundled()
	require.NoError(t, err)
	store := memory.NewStore()

	// Simulate a racing writer that lands the exact composite key between the
	// idempotency read and the conditional put.
	b := laborBaseline("base_A")
	b.Lines = b.Lines[:1]
	key := db.Key{
		Partition: rubro.ProjectPK("P-001"),
		Sort:      rubro.RubroSK("base_A", "MOD-ING", 1),
	}

	engine := NewEngine(&raceStore{Store: store, key: key}, catalog, Config{}, zerolog.Nop())
	_, err = engine.Materialize(ctx, "P-001", b)
	require.Error(t, err)
	assert.True(t, finerr.IsCollision(err))
}

// raceStore injects a competing write between the idempotency read and the
// conditional put.
type raceStore struct {
	*memory.Store
	key     db.Key
	planted bool
}

func (r *raceStore) PutIfAbsent(ctx context.Context, key db.Key, item db.Item) error {
	if !r.planted && key == r.key {
		r.planted = true
		if err := r.Store.Put(ctx, key, db.Item{"rubro_id": "winner"}); err != nil {
			return err
		}
	}
	return r.Store.PutIfAbsent(ctx, key, item)
}
