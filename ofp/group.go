package ofp

// Group uniquely identifies the group in the switch.
//
// Group table support (GROUP_MOD, group statistics and group
// features) is out of scope for this switch; the identifier type and
// its wildcard values are kept because FlowMod and FlowStats still
// carry a Group field on the wire.
type Group uint32

const (
	// GroupMax is the last usable group number.
	GroupMax Group = 0xffffff00

	// GroupAll represents all groups for group delete commands.
	GroupAll Group = 0xfffffffc

	// GroupAny is a wildcard group used only for flow stats requests.
	// Selects all flows regardless of group (including flows with no
	// group)
	GroupAny Group = 0xffffffff
)
