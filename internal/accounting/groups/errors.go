package groups

import (
	"fmt"

	"github.com/odyssey-erp/pharmaledger/internal/shared"
)

var (
	ErrGroupNotFound    = fmt.Errorf("%w: groups: group not found", shared.ErrNotFound)
	ErrParentNotFound   = fmt.Errorf("%w: groups: parent group not found", shared.ErrNotFound)
	ErrDuplicateName    = fmt.Errorf("%w: groups: a group with this name already exists", shared.ErrConflict)
	ErrDefaultGroup     = fmt.Errorf("%w: groups: default groups cannot be modified", shared.ErrPermissionDenied)
	ErrNotDeletable     = fmt.Errorf("%w: groups: group is marked non-deletable", shared.ErrPermissionDenied)
	ErrHasChildren      = fmt.Errorf("%w: groups: group has sub-groups", shared.ErrPermissionDenied)
	ErrHasLedgers       = fmt.Errorf("%w: groups: group has ledgers", shared.ErrPermissionDenied)
	ErrCorruptHierarchy = fmt.Errorf("%w: groups: ancestor chain contains a cycle", shared.ErrIntegrity)

	ErrCycle        = shared.NewValidationError("groups: parent would create a cycle", "parent_id")
	ErrTypeMismatch = shared.NewValidationError("groups: parent must have the same group type", "parent_id")
)
