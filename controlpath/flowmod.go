package controlpath

import (
	"fmt"

	"github.com/netrack/ofswitch/ofp"
)

// validateFlowMod checks a parsed flow mod against the commands,
// instructions and actions the datapath implements. A flow mod that
// fails any check is rejected in full; nothing reaches the tables.
func validateFlowMod(fm *ofp.FlowMod, numTables uint8) error {
	switch fm.Command {
	case ofp.FlowAdd:
		if fm.Table >= ofp.Table(numTables) {
			return fmt.Errorf("flow mod targets unknown table %d", fm.Table)
		}
	case ofp.FlowDelete:
		if fm.Table != ofp.TableAll && fm.Table >= ofp.Table(numTables) {
			return fmt.Errorf("flow mod targets unknown table %d", fm.Table)
		}
	default:
		return fmt.Errorf("unsupported flow mod command %d", fm.Command)
	}

	for _, inst := range fm.Instructions {
		switch v := inst.(type) {
		case *ofp.InstructionGotoTable:
			// The target must lie strictly downstream of the entry's
			// own table; the pipeline only ever moves forward.
			if v.Table <= fm.Table || v.Table >= ofp.Table(numTables) {
				return fmt.Errorf("goto-table target %d invalid from table %d", v.Table, fm.Table)
			}
		case *ofp.InstructionApplyActions:
			if err := validateActions(v.Actions); err != nil {
				return err
			}
		case *ofp.InstructionWriteActions:
			if err := validateActions(v.Actions); err != nil {
				return err
			}
		case *ofp.InstructionClearActions:
		default:
			return fmt.Errorf("unsupported instruction %s", inst.Type())
		}
	}

	return nil
}

// validateActions requires every action in the list to be an output;
// nothing else is implemented by the pipeline.
func validateActions(actions ofp.Actions) error {
	for _, act := range actions {
		if _, ok := act.(*ofp.ActionOutput); !ok {
			return fmt.Errorf("unsupported action %s", act.Type())
		}
	}
	return nil
}
