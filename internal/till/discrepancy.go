package till

// Discrepancy arithmetic. Only cash sales count toward the drawer; card,
// mobile and other tenders are informational.

// ExpectedClosing returns the cash amount the drawer should hold at close.
func ExpectedClosing(sess Session) float64 {
	return sess.OpeningAmount + sess.TotalCashSales
}

// ComputeDiscrepancy returns the signed difference between counted and
// expected cash.
func ComputeDiscrepancy(expected, actual float64) float64 {
	return actual - expected
}

// RequiresApproval reports whether the discrepancy needs a PIN-verified
// approver. Any nonzero amount triggers approval; there is no tolerance
// band.
func RequiresApproval(discrepancy float64) bool {
	return discrepancy != 0
}
