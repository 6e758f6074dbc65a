package station

import "testing"

func validParallelCfg() Config {
	return Config{Flow: FlowParallel, Block: BlockBlocking, Prescale: 1, Restore: RestoreToStation}
}

func TestValidateParallelConfigAccepts(t *testing.T) {
	if err := ValidateParallelConfig(validParallelCfg()); err != nil {
		t.Fatalf("expected valid config to pass, got %v", err)
	}
}

func TestValidateParallelConfigRejectsNonParallelFlow(t *testing.T) {
	cfg := validParallelCfg()
	cfg.Flow = FlowSerial
	if err := ValidateParallelConfig(cfg); err == nil {
		t.Fatal("expected error for non-parallel flow mode")
	}
}

func TestValidateParallelConfigRejectsNonBlocking(t *testing.T) {
	cfg := validParallelCfg()
	cfg.Block = BlockNonBlocking
	if err := ValidateParallelConfig(cfg); err == nil {
		t.Fatal("expected error for non-blocking block mode")
	}
}

func TestValidateParallelConfigRejectsPrescale(t *testing.T) {
	cfg := validParallelCfg()
	cfg.Prescale = 2
	if err := ValidateParallelConfig(cfg); err == nil {
		t.Fatal("expected error for prescale != 1")
	}
}

func TestValidateParallelConfigRejectsRestoreToInput(t *testing.T) {
	cfg := validParallelCfg()
	cfg.Restore = RestoreToInput
	if err := ValidateParallelConfig(cfg); err == nil {
		t.Fatal("expected error for restore mode to_input")
	}
}

func TestCompatibleWithHeadRequiresMatchingSelectMode(t *testing.T) {
	head := Config{Select: SelectRRobin, SelectVector: []int32{1, 2}}
	joining := Config{Select: SelectEqualCue, SelectVector: []int32{1, 2}}
	if err := CompatibleWithHead(head, joining); err == nil {
		t.Fatal("expected mismatch error for differing select modes")
	}
}

func TestCompatibleWithHeadRequiresMatchingVectorLength(t *testing.T) {
	head := Config{Select: SelectRRobin, SelectVector: []int32{1, 2}}
	joining := Config{Select: SelectRRobin, SelectVector: []int32{1}}
	if err := CompatibleWithHead(head, joining); err == nil {
		t.Fatal("expected mismatch error for differing select vector lengths")
	}
}

func TestCompatibleWithHeadRequiresMatchingUserPredicate(t *testing.T) {
	head := Config{Select: SelectUser, SelectVector: []int32{1}, UserPredicate: "even"}
	joining := Config{Select: SelectUser, SelectVector: []int32{1}, UserPredicate: "odd"}
	if err := CompatibleWithHead(head, joining); err == nil {
		t.Fatal("expected mismatch error for differing user predicates")
	}
}

func TestCompatibleWithHeadAcceptsMatchingConfig(t *testing.T) {
	head := Config{Select: SelectRRobin, SelectVector: []int32{1, 2}}
	joining := Config{Select: SelectRRobin, SelectVector: []int32{1, 2}}
	if err := CompatibleWithHead(head, joining); err != nil {
		t.Fatalf("expected matching config to pass, got %v", err)
	}
}

func TestCompatibleWithHeadIgnoresVectorForSelectAll(t *testing.T) {
	head := Config{Select: SelectAll}
	joining := Config{Select: SelectAll}
	if err := CompatibleWithHead(head, joining); err != nil {
		t.Fatalf("expected SelectAll members to always be compatible, got %v", err)
	}
}
