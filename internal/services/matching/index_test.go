package matching

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bank-reconciliation-backend/internal/models"
)

func TestIndexFindByCUI(t *testing.T) {
	due := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	match := testInvoice(models.InvoiceKindIssued, "Electromontaj SA", "RO40123456", "1000", due)
	other := testInvoice(models.InvoiceKindIssued, "Acme SRL", "RO11223344", "1000", due)

	ix := NewIndex([]*models.Invoice{match, other}, 0.6)

	tx := testTx("whatever name", "40123456", "1000", due)
	cands, err := ix.FindCandidates(context.Background(), tx)
	require.NoError(t, err)
	require.Len(t, cands, 1)
	assert.Equal(t, match.ID, cands[0].Invoice.ID)
}

func TestIndexNameFallback(t *testing.T) {
	due := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	near := testInvoice(models.InvoiceKindIssued, "Electromontaj S.A.", "", "500", due)
	far := testInvoice(models.InvoiceKindIssued, "Hidroconstructia SA", "", "500", due)

	ix := NewIndex([]*models.Invoice{near, far}, 0.6)

	tx := testTx("Electromontaj SA", "", "500", due)
	cands, err := ix.FindCandidates(context.Background(), tx)
	require.NoError(t, err)
	require.Len(t, cands, 1)
	assert.Equal(t, near.ID, cands[0].Invoice.ID)
}

func TestIndexDirectionFilter(t *testing.T) {
	due := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	issued := testInvoice(models.InvoiceKindIssued, "Acme SRL", "RO11223344", "1000", due)
	received := testInvoice(models.InvoiceKindReceived, "Acme SRL", "RO11223344", "1000", due)

	ix := NewIndex([]*models.Invoice{issued, received}, 0.6)

	inTx := testTx("Acme SRL", "11223344", "1000", due)
	inTx.Direction = models.DirectionInflow
	cands, err := ix.FindCandidates(context.Background(), inTx)
	require.NoError(t, err)
	require.Len(t, cands, 1)
	assert.Equal(t, issued.ID, cands[0].Invoice.ID)

	outTx := testTx("Acme SRL", "11223344", "-1000", due)
	outTx.Direction = models.DirectionOutflow
	cands, err = ix.FindCandidates(context.Background(), outTx)
	require.NoError(t, err)
	require.Len(t, cands, 1)
	assert.Equal(t, received.ID, cands[0].Invoice.ID)
}

func TestIndexExcludesClosedInvoices(t *testing.T) {
	due := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	cancelled := testInvoice(models.InvoiceKindIssued, "Acme SRL", "RO11223344", "1000", due)
	cancelled.Status = models.InvoiceStatusCancelled
	paid := testInvoice(models.InvoiceKindIssued, "Acme SRL", "RO11223344", "1000", due)
	paid.Status = models.InvoiceStatusPaid
	partial := testInvoice(models.InvoiceKindIssued, "Acme SRL", "RO11223344", "1000", due)
	partial.Status = models.InvoiceStatusPartial

	ix := NewIndex([]*models.Invoice{cancelled, paid, partial}, 0.6)

	tx := testTx("Acme SRL", "11223344", "1000", due)
	cands, err := ix.FindCandidates(context.Background(), tx)
	require.NoError(t, err)
	require.Len(t, cands, 1)
	assert.Equal(t, partial.ID, cands[0].Invoice.ID)
}

func TestIndexCurrencyFilter(t *testing.T) {
	due := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	eur := testInvoice(models.InvoiceKindIssued, "Acme SRL", "RO11223344", "1000", due)
	eur.Currency = "EUR"

	ix := NewIndex([]*models.Invoice{eur}, 0.6)

	tx := testTx("Acme SRL", "11223344", "1000", due)
	tx.Currency = "RON"
	cands, err := ix.FindCandidates(context.Background(), tx)
	require.NoError(t, err)
	assert.Empty(t, cands)
}

func TestIndexEmptyResultIsNotAnError(t *testing.T) {
	ix := NewIndex(nil, 0.6)
	tx := testTx("Nobody SRL", "99887766", "100", time.Now())
	cands, err := ix.FindCandidates(context.Background(), tx)
	assert.NoError(t, err)
	assert.Empty(t, cands)
}
