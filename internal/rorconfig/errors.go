package rorconfig

import "fmt"

// BlockValidationError reports a structural problem with a single block's
// configuration (missing name, bad policy string, dangling definition reference).
type BlockValidationError struct {
	Index  int // set only when Block is still unknown (e.g. the name itself is missing)
	Block  string
	Detail string
}

func (e *BlockValidationError) Error() string {
	if e.Block == "" {
		return fmt.Sprintf("block #%d: %s", e.Index, e.Detail)
	}
	return fmt.Sprintf("block %q: %s", e.Block, e.Detail)
}

// RulesLevelCreationError reports a rule-combination problem that can only be detected
// by looking at more than one rule's configuration together — e.g. a variable needing
// authentication with no authenticating rule present (§4.2). Distinct from
// BlockValidationError so callers can tell "this block is malformed" apart from "this
// block's rules, each individually valid, don't cohere."
type RulesLevelCreationError struct {
	Block  string
	Detail string
}

func (e *RulesLevelCreationError) Error() string {
	return fmt.Sprintf("block %q: %s", e.Block, e.Detail)
}
