package shared

import "fmt"

// VoucherSequenceKey identifies the numbering sequence for a voucher prefix and month.
func VoucherSequenceKey(tenantID int64, prefix string, year, month int) string {
	return fmt.Sprintf("ledger:%d:voucher:%s:%04d%02d", tenantID, prefix, year, month)
}

// PermissionCacheKey builds redis keys for cached group grants.
func PermissionCacheKey(tenantID, userID, groupID int64) string {
	return fmt.Sprintf("ledger:%d:perm:%d:%d", tenantID, userID, groupID)
}

// PermissionUserPattern matches every cached grant of a user.
func PermissionUserPattern(tenantID, userID int64) string {
	return fmt.Sprintf("ledger:%d:perm:%d:*", tenantID, userID)
}

// PermissionGroupPattern matches every cached grant on a group.
func PermissionGroupPattern(tenantID, groupID int64) string {
	return fmt.Sprintf("ledger:%d:perm:*:%d", tenantID, groupID)
}
