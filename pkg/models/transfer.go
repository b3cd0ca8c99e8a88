package models

// IncomingTransfer is one wallet-reported transfer to a destination address.
//
// Amount and Confirmations are pointers because the wallet RPC omits them in
// some responses: a transfer with no amount carries no value, and a
// transaction still in the mempool has no confirmation count yet.
type IncomingTransfer struct {
	TxID          string  `json:"txid"`
	Amount        *uint64 `json:"amount"`
	Confirmations *uint64 `json:"confirmations"`
	Fee           uint64  `json:"fee"`
	Height        uint64  `json:"height"`
}

// TransferSummary aggregates all incoming transfers observed for one
// destination address into the figures the reconciler compares against.
type TransferSummary struct {
	Count            int
	TotalAmount      uint64
	MinConfirmations uint64
}

// Empty reports whether no transfers were observed.
func (s TransferSummary) Empty() bool { return s.Count == 0 }

// ExactlyOne reports whether a single transfer was observed.
func (s TransferSummary) ExactlyOne() bool { return s.Count == 1 }

// MoreThanOne reports whether the address received multiple transfers.
func (s TransferSummary) MoreThanOne() bool { return s.Count > 1 }

// SummarizeTransfers builds a TransferSummary from raw transfer records.
//
// Records without an amount contribute nothing. MinConfirmations is the
// minimum among records that report a count; if none do, it stays 0, which
// conservatively treats the whole set as unconfirmed.
func SummarizeTransfers(transfers []IncomingTransfer) TransferSummary {
	summary := TransferSummary{}

	var minConfs *uint64
	for _, t := range transfers {
		if t.Amount == nil {
			continue
		}
		summary.Count++
		summary.TotalAmount += *t.Amount

		if t.Confirmations == nil {
			continue
		}
		if minConfs == nil || *t.Confirmations < *minConfs {
			c := *t.Confirmations
			minConfs = &c
		}
	}

	if minConfs != nil {
		summary.MinConfirmations = *minConfs
	}
	return summary
}
