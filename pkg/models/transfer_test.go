package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func uptr(v uint64) *uint64 { return &v }

func TestSummarizeTransfersEmpty(t *testing.T) {
	summary := SummarizeTransfers(nil)

	assert.True(t, summary.Empty())
	assert.False(t, summary.ExactlyOne())
	assert.False(t, summary.MoreThanOne())
	assert.Zero(t, summary.TotalAmount)
	assert.Zero(t, summary.MinConfirmations)
}

func TestSummarizeTransfersSingle(t *testing.T) {
	summary := SummarizeTransfers([]IncomingTransfer{
		{TxID: "tx1", Amount: uptr(1_000_000_000_000), Confirmations: uptr(12)},
	})

	assert.True(t, summary.ExactlyOne())
	assert.Equal(t, uint64(1_000_000_000_000), summary.TotalAmount)
	assert.Equal(t, uint64(12), summary.MinConfirmations)
}

func TestSummarizeTransfersAggregates(t *testing.T) {
	summary := SummarizeTransfers([]IncomingTransfer{
		{TxID: "tx1", Amount: uptr(1_000_000_000_000), Confirmations: uptr(12)},
		{TxID: "tx2", Amount: uptr(500_000_000_000), Confirmations: uptr(3)},
		{TxID: "tx3", Amount: uptr(250_000_000_000), Confirmations: uptr(7)},
	})

	assert.True(t, summary.MoreThanOne())
	assert.Equal(t, 3, summary.Count)
	assert.Equal(t, uint64(1_750_000_000_000), summary.TotalAmount)
	assert.Equal(t, uint64(3), summary.MinConfirmations, "the least confirmed transfer gates the whole set")
}

func TestSummarizeTransfersSkipsAmountlessRecords(t *testing.T) {
	summary := SummarizeTransfers([]IncomingTransfer{
		{TxID: "tx1", Amount: uptr(1_000_000_000_000), Confirmations: uptr(12)},
		{TxID: "tx2"},
	})

	assert.True(t, summary.ExactlyOne())
	assert.Equal(t, uint64(1_000_000_000_000), summary.TotalAmount)
}

func TestSummarizeTransfersMempoolRecordCountsAsUnconfirmed(t *testing.T) {
	// A pool transfer carries an amount but no confirmation count yet.
	summary := SummarizeTransfers([]IncomingTransfer{
		{TxID: "tx1", Amount: uptr(1_000_000_000_000)},
	})

	assert.True(t, summary.ExactlyOne())
	assert.Zero(t, summary.MinConfirmations)
}
