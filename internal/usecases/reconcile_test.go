package usecases

import (
	"errors"
	"math/rand"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abelzeko/alerts-sync/internal/entities"
)

func alert(id, data string) entities.Alert {
	a := entities.NewAlert(id, "07.10.2023", "06:30:00")
	a.Set("data", data)
	return a
}

func ids(alerts []entities.Alert) []string {
	out := make([]string, len(alerts))
	for i, a := range alerts {
		out[i] = a.ID
	}
	return out
}

func knownDataset(alerts ...entities.Alert) *entities.Dataset {
	return &entities.Dataset{
		Header: []string{entities.ColumnID, entities.ColumnDate, entities.ColumnTime, "data"},
		Alerts: alerts,
	}
}

func TestReconcileAppendsNewAlerts(t *testing.T) {
	known := knownDataset(alert("1", "a"), alert("2", "b"))
	merged, added, err := Reconcile(known, []entities.Alert{alert("3", "c")})
	require.NoError(t, err)

	assert.Equal(t, 1, added)
	assert.Equal(t, []string{"1", "2", "3"}, ids(merged.Alerts))
	assert.Equal(t, known.Header, merged.Header)
	assert.Len(t, known.Alerts, 2, "known dataset must not change")
}

func TestReconcileFetchedOverridesKnown(t *testing.T) {
	known := knownDataset(alert("1", "old"), alert("2", "b"))
	merged, added, err := Reconcile(known, []entities.Alert{alert("1", "new")})
	require.NoError(t, err)

	assert.Equal(t, 0, added)
	assert.Equal(t, []string{"1", "2"}, ids(merged.Alerts))
	assert.Equal(t, "new", merged.Alerts[0].Get("data"))
}

func TestReconcileDeduplicatesFetchedBatch(t *testing.T) {
	merged, added, err := Reconcile(knownDataset(), []entities.Alert{
		alert("7", "first"), alert("7", "second"), alert("8", "x"),
	})
	require.NoError(t, err)

	assert.Equal(t, 2, added)
	assert.Equal(t, []string{"7", "8"}, ids(merged.Alerts))
	assert.Equal(t, "second", merged.Alerts[0].Get("data"))
}

func TestReconcileSortsNumerically(t *testing.T) {
	merged, _, err := Reconcile(knownDataset(alert("9", ""), alert("100", "")), []entities.Alert{alert("20", "")})
	require.NoError(t, err)
	assert.Equal(t, []string{"9", "20", "100"}, ids(merged.Alerts))
}

func TestReconcileOrderIndependentOfInputOrder(t *testing.T) {
	var fetched []entities.Alert
	for i := 1; i <= 50; i++ {
		fetched = append(fetched, alert(strconv.Itoa(i), ""))
	}
	want, _, err := Reconcile(nil, fetched)
	require.NoError(t, err)

	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 10; i++ {
		shuffled := append([]entities.Alert(nil), fetched...)
		rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })

		got, added, err := Reconcile(nil, shuffled)
		require.NoError(t, err)
		assert.Equal(t, 50, added)
		assert.Equal(t, ids(want.Alerts), ids(got.Alerts))
	}
}

func TestReconcileIdempotent(t *testing.T) {
	fetched := []entities.Alert{alert("3", "c"), alert("4", "d")}
	first, added, err := Reconcile(knownDataset(alert("1", "a")), fetched)
	require.NoError(t, err)
	require.Equal(t, 2, added)

	second, added, err := Reconcile(first, fetched)
	require.NoError(t, err)
	assert.Equal(t, 0, added)
	assert.Equal(t, ids(first.Alerts), ids(second.Alerts))
}

func TestReconcileWithNothingFetched(t *testing.T) {
	known := knownDataset(alert("1", "a"), alert("2", "b"), alert("10", "c"))
	merged, added, err := Reconcile(known, nil)
	require.NoError(t, err)

	assert.Equal(t, 0, added)
	assert.Equal(t, known.Header, merged.Header)
	assert.Equal(t, known.Alerts, merged.Alerts)
}

func TestReconcileCountsUnionOfIDs(t *testing.T) {
	known := knownDataset(alert("1", ""), alert("2", ""), alert("3", ""))
	fetched := []entities.Alert{alert("3", ""), alert("4", ""), alert("4", ""), alert("5", "")}

	merged, added, err := Reconcile(known, fetched)
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2", "3", "4", "5"}, ids(merged.Alerts))
	assert.Equal(t, 2, added)
}

func TestReconcileEmptyInputs(t *testing.T) {
	merged, added, err := Reconcile(nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, added)
	assert.Equal(t, 0, merged.Len())
	assert.Equal(t, []string{entities.ColumnID, entities.ColumnDate, entities.ColumnTime}, merged.Header)
}

func TestReconcileBootstrapHeader(t *testing.T) {
	a := alert("1", "x")
	a.Set("category", "1")
	merged, _, err := Reconcile(&entities.Dataset{}, []entities.Alert{a})
	require.NoError(t, err)
	assert.Equal(t, []string{"rid", "date", "time", "data", "category"}, merged.Header)
}

func TestReconcileExtendsHeaderWithNewColumns(t *testing.T) {
	a := alert("2", "x")
	a.Set("matrix_id", "1")
	merged, _, err := Reconcile(knownDataset(alert("1", "y")), []entities.Alert{a})
	require.NoError(t, err)
	assert.Equal(t, []string{"rid", "date", "time", "data", "matrix_id"}, merged.Header)
}

func TestReconcileDuplicateKnownID(t *testing.T) {
	_, _, err := Reconcile(knownDataset(alert("1", "a"), alert("1", "b")), nil)
	assert.True(t, errors.Is(err, entities.ErrDuplicateID))
}

func TestReconcileSameNumericValue(t *testing.T) {
	_, _, err := Reconcile(knownDataset(alert("7", "a")), []entities.Alert{alert("007", "b")})
	assert.True(t, errors.Is(err, entities.ErrDuplicateID))
}

func TestReconcileNonNumericID(t *testing.T) {
	_, _, err := Reconcile(nil, []entities.Alert{alert("abc", "")})
	assert.True(t, errors.Is(err, entities.ErrMalformedDataset))
}

func TestNewAlerts(t *testing.T) {
	known := knownDataset(alert("1", ""), alert("2", ""))
	merged, _, err := Reconcile(known, []entities.Alert{alert("2", "u"), alert("4", ""), alert("3", "")})
	require.NoError(t, err)

	assert.Equal(t, []string{"3", "4"}, ids(NewAlerts(known, merged)))
	assert.Empty(t, NewAlerts(known, nil))
	assert.Len(t, NewAlerts(nil, merged), 4)
}

func TestCommitMessage(t *testing.T) {
	assert.Equal(t, "Added 1 alert", CommitMessage(1))
	assert.Equal(t, "Added 12 alerts", CommitMessage(12))
}
