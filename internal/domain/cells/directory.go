package cells

import (
	"errors"
	"fmt"

	"github.com/neighbourhoods/forum-applet/internal/shared/types"
)

var (
	// ErrUnrecognizedCellShape is returned for descriptors that are neither
	// provisioned nor cloned
	ErrUnrecognizedCellShape = errors.New("unrecognized cell shape")
	// ErrRoleNotFound is returned when a role is missing from the manifest
	ErrRoleNotFound = errors.New("role not found")
	// ErrNotProvisioned is returned when a role has no provisioned cell
	ErrNotProvisioned = errors.New("role has no provisioned cell")
)

// ResolveIdentifier returns the cell id of a provisioned or cloned
// descriptor. Any other shape fails and yields the zero id.
func ResolveIdentifier(d types.CellDescriptor) (types.CellID, error) {
	switch c := d.(type) {
	case types.ProvisionedCell:
		if c.CellID.IsZero() {
			return types.CellID{}, fmt.Errorf("%w: provisioned cell without id", ErrUnrecognizedCellShape)
		}
		return c.CellID, nil
	case types.ClonedCell:
		if c.CellID.IsZero() {
			return types.CellID{}, fmt.Errorf("%w: cloned cell %q without id", ErrUnrecognizedCellShape, c.CloneID)
		}
		return c.CellID, nil
	case nil:
		return types.CellID{}, fmt.Errorf("%w: nil descriptor", ErrUnrecognizedCellShape)
	default:
		return types.CellID{}, fmt.Errorf("%w: %q", ErrUnrecognizedCellShape, d.Kind())
	}
}

// FindRoleCells returns the ordered cells of role
func FindRoleCells(m *types.Manifest, role string) (types.CellList, error) {
	if m == nil {
		return nil, fmt.Errorf("%w: %q (no manifest)", ErrRoleNotFound, role)
	}
	cells, ok := m.CellInfo[role]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrRoleNotFound, role)
	}
	return cells, nil
}

// Directory answers lookups over one immutable manifest
type Directory struct {
	manifest *types.Manifest
}

// NewDirectory wraps m
func NewDirectory(m *types.Manifest) (*Directory, error) {
	if m == nil {
		return nil, errors.New("cells: nil manifest")
	}
	return &Directory{manifest: m}, nil
}

// Manifest returns the wrapped manifest
func (d *Directory) Manifest() *types.Manifest {
	return d.manifest
}

// Roles returns the role names in sorted order
func (d *Directory) Roles() []string {
	return d.manifest.RoleNames()
}

// Identifiers resolves every cell of every role, roles in sorted order and
// cells in manifest order. The first unrecognized descriptor aborts the
// enumeration.
func (d *Directory) Identifiers() ([]types.CellID, error) {
	var ids []types.CellID
	for _, role := range d.Roles() {
		for i, c := range d.manifest.CellInfo[role] {
			id, err := ResolveIdentifier(c)
			if err != nil {
				return nil, fmt.Errorf("role %q cell %d: %w", role, i, err)
			}
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// AgentKey returns the local agent key from the first provisioned cell of
// the required primary role.
func (d *Directory) AgentKey(primaryRole string) (types.AgentPubKey, error) {
	cells, err := FindRoleCells(d.manifest, primaryRole)
	if err != nil {
		return nil, err
	}
	for _, c := range cells {
		if p, ok := c.(types.ProvisionedCell); ok {
			return p.CellID.AgentPubKey, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrNotProvisioned, primaryRole)
}

// Sensemaker returns the cells of the sensemaker role. An absent role is
// the expected pre-provisioned condition and yields an empty list.
func (d *Directory) Sensemaker(role string) (types.CellList, error) {
	cells, err := FindRoleCells(d.manifest, role)
	if errors.Is(err, ErrRoleNotFound) {
		return nil, nil
	}
	return cells, err
}
