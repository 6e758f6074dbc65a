package station

import "fmt"

// ValidateParallelConfig enforces the configuration constraints a
// parallel-group member must satisfy at create/move time (spec §4.4):
// flow mode parallel, block mode blocking, prescale 1, and a restore mode
// other than to_input.
func ValidateParallelConfig(cfg Config) error {
	if cfg.Flow != FlowParallel {
		return fmt.Errorf("station: parallel group member must have flow mode parallel")
	}
	if cfg.Block != BlockBlocking {
		return fmt.Errorf("station: parallel group member must have block mode blocking")
	}
	if cfg.Prescale != 1 {
		return fmt.Errorf("station: parallel group member must have prescale 1, got %d", cfg.Prescale)
	}
	if cfg.Restore == RestoreToInput {
		return fmt.Errorf("station: parallel group member cannot use restore mode to_input")
	}
	return nil
}

// CompatibleWithHead reports whether a joining station's configuration is
// compatible with a group head using rrobin/equal_cue/user distribution:
// identical select mode and, where relevant, an identical select vector
// (spec §4.4).
func CompatibleWithHead(head, joining Config) error {
	if head.Select != joining.Select {
		return fmt.Errorf("station: joining select mode %v does not match group head mode %v", joining.Select, head.Select)
	}
	switch head.Select {
	case SelectRRobin, SelectEqualCue, SelectUser:
		if len(head.SelectVector) != len(joining.SelectVector) {
			return fmt.Errorf("station: joining select vector length %d does not match group head length %d", len(joining.SelectVector), len(head.SelectVector))
		}
		for i := range head.SelectVector {
			if head.SelectVector[i] != joining.SelectVector[i] {
				return fmt.Errorf("station: joining select vector differs from group head at index %d", i)
			}
		}
		if head.Select == SelectUser && head.UserPredicate != joining.UserPredicate {
			return fmt.Errorf("station: joining user predicate %q does not match group head predicate %q", joining.UserPredicate, head.UserPredicate)
		}
	}
	return nil
}
