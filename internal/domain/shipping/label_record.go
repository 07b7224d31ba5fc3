package shipping

import "time"

// Download and print states of a LabelRecord.
const (
	DownloadStateLabelSaved = "label saved"

	PrintStatePrinted   = "printed"
	PrintStateReprinted = "reprinted"
)

// LabelRecord tracks the carrier label of one order: where it was downloaded
// from, whether it is on disk, the last pipeline failure and how many times
// it was physically printed. Records are never deleted.
type LabelRecord struct {
	OrderID         int64
	StoreID         int64
	OrderNumber     string
	LabelID         string
	DownloadLink    string
	DownloadedState string
	LastError       string
	PrintCount      int
	PrintState      string
	UpdatedAt       time.Time
}

// NewLabelRecord creates the record for a freshly synchronized order.
func NewLabelRecord(orderID, storeID int64, orderNumber string) *LabelRecord {
	return &LabelRecord{
		OrderID:     orderID,
		StoreID:     storeID,
		OrderNumber: orderNumber,
		UpdatedAt:   time.Now(),
	}
}

// LabelSaved reports whether the transport label has been stored.
func (r *LabelRecord) LabelSaved() bool {
	return r.DownloadedState == DownloadStateLabelSaved
}

// MarkLabelSaved records a successful carrier label download.
func (r *LabelRecord) MarkLabelSaved(labelID, link string) {
	r.LabelID = labelID
	r.DownloadLink = link
	r.DownloadedState = DownloadStateLabelSaved
	r.LastError = ""
	r.UpdatedAt = time.Now()
}

// RecordFailure annotates the record with a pipeline failure. The download
// state is left as it was.
func (r *LabelRecord) RecordFailure(err error) {
	if err == nil {
		return
	}
	r.LastError = Kind(err) + ": " + err.Error()
	r.UpdatedAt = time.Now()
}
