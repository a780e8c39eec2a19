package orderflow

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
)

// createFingerprint derives the idempotency key for order creation from the
// caller identity and the normalized order parameters. The item list is
// sorted so that the same logical order always yields the same key
// regardless of payload ordering.
func createFingerprint(actorID, storeID string, items []OrderItem, total float64) string {
	sorted := make([]OrderItem, len(items))
	copy(sorted, items)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].ItemID != sorted[j].ItemID {
			return sorted[i].ItemID < sorted[j].ItemID
		}
		return sorted[i].Quantity < sorted[j].Quantity
	})

	var b strings.Builder
	fmt.Fprintf(&b, "create|%s|%s|%.2f", actorID, storeID, total)
	for _, it := range sorted {
		fmt.Fprintf(&b, "|%s:%d:%.2f", it.ItemID, it.Quantity, it.UnitPrice)
	}
	return digest(b.String())
}

// statusFingerprint derives the idempotency key for a status transition.
// A second call for the same (order, target status, actor) is a retry of
// the same logical request, not a new transition.
func statusFingerprint(orderID, newStatus, actorID string) string {
	return digest(fmt.Sprintf("status|%s|%s|%s", orderID, newStatus, actorID))
}

func digest(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
